// Package presence tracks which users hold at least one open realtime connection.
//
// Presence is reference-counted per connection: a user stays online until the
// last of their connections closes.
package presence

import (
	"context"
	"sync"
)

// Tracker records connection lifecycles per user.
type Tracker interface {
	// Connect registers connID and reports whether it is the user's first connection.
	Connect(ctx context.Context, userID int64, connID string) (bool, error)
	// Disconnect removes connID and reports whether it was the user's last connection.
	Disconnect(ctx context.Context, userID int64, connID string) (bool, error)
	// Refresh extends the lifetime of a live connection.
	Refresh(ctx context.Context, userID int64, connID string) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// Local keeps presence in process memory.
type Local struct {
	mu    sync.RWMutex
	conns map[int64]map[string]struct{}
}

func NewLocal() *Local {
	return &Local{conns: make(map[int64]map[string]struct{})}
}

func (l *Local) Connect(_ context.Context, userID int64, connID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		l.conns[userID] = set
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

func (l *Local) Disconnect(_ context.Context, userID int64, connID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		return false, nil
	}
	if _, ok := set[connID]; !ok {
		return false, nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(l.conns, userID)
		return true, nil
	}
	return false, nil
}

func (l *Local) Refresh(context.Context, int64, string) error { return nil }

func (l *Local) IsOnline(_ context.Context, userID int64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns[userID]) > 0, nil
}

// Count returns the number of open connections of userID.
func (l *Local) Count(userID int64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns[userID])
}
