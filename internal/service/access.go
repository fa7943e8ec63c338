package service

import (
	"context"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository"
)

// AccessGate decides whether two users may exchange messages.
type AccessGate interface {
	CanMessage(ctx context.Context, userID, otherID int64) (bool, error)
}

// FriendshipGate allows messaging between friends with no block in either direction.
type FriendshipGate struct {
	relations repository.RelationRepository
}

func NewFriendshipGate(relations repository.RelationRepository) *FriendshipGate {
	return &FriendshipGate{relations: relations}
}

func (g *FriendshipGate) CanMessage(ctx context.Context, userID, otherID int64) (bool, error) {
	if userID == otherID {
		return false, nil
	}
	friends, err := g.relations.AreFriends(ctx, userID, otherID)
	if err != nil || !friends {
		return false, err
	}
	blocked, err := g.relations.IsBlocked(ctx, userID, otherID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// AllowAll is an AccessGate for tooling and tests.
type AllowAll struct{}

func (AllowAll) CanMessage(_ context.Context, userID, otherID int64) (bool, error) {
	return userID != otherID, nil
}
