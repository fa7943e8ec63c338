package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/presence"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository/sqlite"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/snowflake"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/workerpool"
)

const (
	ana  int64 = 1
	bea  int64 = 2
	caio int64 = 3
)

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []ReplyJob
}

func (r *recordingScheduler) ScheduleReply(_ context.Context, job ReplyJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingScheduler) Jobs() []ReplyJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReplyJob(nil), r.jobs...)
}

type harness struct {
	db            *sqlite.DB
	presence      *presence.Local
	recorder      *event.Recorder
	scheduler     *recordingScheduler
	conversations *ConversationService
	dispatcher    *DispatcherService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, u := range []*model.User{
		{ID: ana, Nickname: "ana", Name: "Ana"},
		{ID: bea, Nickname: "bea", Name: "Bea"},
		{ID: caio, Nickname: "caio", Name: "Caio"},
	} {
		require.NoError(t, db.UpsertUser(ctx, u))
	}
	require.NoError(t, db.SetFriends(ctx, ana, bea, true))
	require.NoError(t, db.SetFriends(ctx, ana, caio, true))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repos := db.Repositories()
	h := &harness{
		db:        db,
		presence:  presence.NewLocal(),
		recorder:  &event.Recorder{},
		scheduler: &recordingScheduler{},
	}
	h.conversations = NewConversationService(repos, NewFriendshipGate(repos.Relations), h.presence, node)

	pool := workerpool.New(2, 64, slog.Default())
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	notifications := NewNotificationService(repos.Notifications, h.recorder, node)
	h.dispatcher = NewDispatcherService(h.conversations, notifications, h.recorder, h.scheduler, pool, time.Second)
	return h
}

func text(s string) *string { return &s }

func TestGetOrCreate_CanonicalPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ab, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)
	ba, err := h.conversations.GetOrCreate(ctx, bea, ana)
	require.NoError(t, err)
	again, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, ab.ID, again.ID)
	assert.Equal(t, bea, ab.OtherUser.ID)
	assert.Equal(t, ana, ba.OtherUser.ID)
	assert.Nil(t, ab.LastMessagePreview)

	list, err := h.conversations.List(ctx, ana)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetOrCreate_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.conversations.GetOrCreate(ctx, bea, caio)
	assert.True(t, apperrors.Is(err, apperrors.ErrAccessDenied), "not friends: %v", err)

	_, err = h.conversations.GetOrCreate(ctx, ana, ana)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))

	_, err = h.conversations.GetOrCreate(ctx, ana, 404)
	assert.True(t, apperrors.Is(err, apperrors.ErrUserNotFound))
}

func TestAppend_NotParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)

	_, _, err = h.conversations.Append(ctx, AppendParams{
		ConversationID: conv.ID, SenderID: caio, Content: text("hi"), Type: model.MessageTypeText,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotParticipant), "got %v", err)

	_, err = h.conversations.ListMessages(ctx, conv.ID, caio, 10, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotParticipant))

	_, err = h.conversations.ListMessages(ctx, 999, ana, 10, 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrConversationNotFound))
}

func TestAppend_BlockedAfterCreation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)

	_, _, err = h.conversations.Append(ctx, AppendParams{ConversationID: conv.ID, SenderID: ana, Content: text("before")})
	require.NoError(t, err)

	require.NoError(t, h.db.SetBlocked(ctx, bea, ana, true))

	_, _, err = h.conversations.Append(ctx, AppendParams{ConversationID: conv.ID, SenderID: ana, Content: text("after")})
	assert.True(t, apperrors.Is(err, apperrors.ErrAccessDenied), "got %v", err)

	page, err := h.conversations.ListMessages(ctx, conv.ID, ana, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1, "conversation row and history survive the block")
}

func TestListMessages_Pagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)

	var ids []int64
	for i, body := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sender := ana
		if i%2 == 1 {
			sender = bea
		}
		msg, _, err := h.conversations.Append(ctx, AppendParams{ConversationID: conv.ID, SenderID: sender, Content: text(body)})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	first, err := h.conversations.ListMessages(ctx, conv.ID, ana, 2, 0)
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, []int64{ids[3], ids[4]}, messageIDs(first.Messages))

	second, err := h.conversations.ListMessages(ctx, conv.ID, ana, 2, first.Messages[0].ID)
	require.NoError(t, err)
	assert.True(t, second.HasMore)
	assert.Equal(t, []int64{ids[1], ids[2]}, messageIDs(second.Messages))

	third, err := h.conversations.ListMessages(ctx, conv.ID, bea, 2, second.Messages[0].ID)
	require.NoError(t, err)
	assert.False(t, third.HasMore)
	assert.Equal(t, []int64{ids[0]}, messageIDs(third.Messages))

	_, err = h.conversations.ListMessages(ctx, conv.ID, ana, 2, 12345)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}

func TestList_OrderedByActivityWithPreview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	withBea, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)
	withCaio, err := h.conversations.GetOrCreate(ctx, ana, caio)
	require.NoError(t, err)

	_, _, err = h.conversations.Append(ctx, AppendParams{ConversationID: withCaio.ID, SenderID: caio, Content: text("first")})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = h.conversations.Append(ctx, AppendParams{ConversationID: withBea.ID, SenderID: bea, Content: text("latest")})
	require.NoError(t, err)

	_, err = h.presence.Connect(ctx, bea, "tab")
	require.NoError(t, err)

	list, err := h.conversations.List(ctx, ana)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, withBea.ID, list[0].ID)
	require.NotNil(t, list[0].LastMessagePreview)
	assert.Equal(t, "latest", *list[0].LastMessagePreview.Content)
	assert.True(t, list[0].OtherUser.Online)
	assert.True(t, list[0].LastMessagePreview.Sender.Online)

	assert.Equal(t, withCaio.ID, list[1].ID)
	assert.False(t, list[1].OtherUser.Online)
	assert.False(t, list[0].LastActivityAt.Before(list[1].LastActivityAt))
}

func TestSendRequest_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		req     SendRequest
		wantErr bool
		check   func(t *testing.T, p AppendParams)
	}{
		{name: "missing conversation", req: SendRequest{Content: text("hi")}, wantErr: true},
		{name: "empty", req: SendRequest{ConversationID: 1, Content: text("   ")}, wantErr: true},
		{name: "unknown type", req: SendRequest{ConversationID: 1, Content: text("hi"), Type: "sticker"}, wantErr: true},
		{name: "attachment without url", req: SendRequest{ConversationID: 1, Attachments: []model.Attachment{{Type: "image"}}}, wantErr: true},
		{
			name: "defaults to text",
			req:  SendRequest{ConversationID: 1, Content: text("hi")},
			check: func(t *testing.T, p AppendParams) {
				assert.Equal(t, model.MessageTypeText, p.Type)
				assert.Nil(t, p.Attachments)
			},
		},
		{
			name: "attachment only",
			req: SendRequest{ConversationID: 1, Content: text(" "), Type: "audio", Attachments: []model.Attachment{
				{URL: " https://cdn/a.ogg ", Type: "audio"},
			}},
			check: func(t *testing.T, p AppendParams) {
				assert.Nil(t, p.Content)
				assert.Equal(t, model.MessageTypeAudio, p.Type)
				assert.Equal(t, "https://cdn/a.ogg", p.Attachments[0].URL)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.req.Normalize(ana)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ana, p.SenderID)
			tt.check(t, p)
		})
	}
}

func TestDispatcher_SendFansOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)

	view, err := h.dispatcher.Send(ctx, ana, &SendRequest{ConversationID: conv.ID, Content: text("oi")})
	require.NoError(t, err)
	assert.Equal(t, ana, view.Sender.ID)
	assert.Equal(t, "oi", *view.Content)
	assert.Equal(t, model.MessageTypeText, view.Type)

	assert.Eventually(t, func() bool {
		return len(h.recorder.For(bea, event.NameMessage)) == 1 &&
			len(h.recorder.For(bea, event.NameNotification)) == 1 &&
			len(h.scheduler.Jobs()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, h.recorder.For(ana, event.NameMessage), "sender is not echoed")

	emitted := h.recorder.For(bea, event.NameMessage)[0].Data.(*model.MessageView)
	assert.Equal(t, view.ID, emitted.ID)

	job := h.scheduler.Jobs()[0]
	assert.Equal(t, ReplyJob{ConversationID: conv.ID, HumanID: ana, BotID: bea, TriggerMessageID: view.ID}, job)
}

func TestDispatcher_DeniedHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv, err := h.conversations.GetOrCreate(ctx, ana, bea)
	require.NoError(t, err)
	require.NoError(t, h.db.SetFriends(ctx, ana, bea, false))

	_, err = h.dispatcher.Send(ctx, ana, &SendRequest{ConversationID: conv.ID, Content: text("oi")})
	assert.True(t, apperrors.Is(err, apperrors.ErrAccessDenied))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.recorder.Deliveries())
	assert.Empty(t, h.scheduler.Jobs())
}

func messageIDs(views []*model.MessageView) []int64 {
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestFriendshipGate_OneSidedUnfriendDeniesBoth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.db.RemoveFriend(ctx, bea, ana))

	gate := NewFriendshipGate(h.db.Repositories().Relations)
	ab, err := gate.CanMessage(ctx, ana, bea)
	require.NoError(t, err)
	ba, err := gate.CanMessage(ctx, bea, ana)
	require.NoError(t, err)
	assert.False(t, ab)
	assert.False(t, ba)

	_, err = h.conversations.GetOrCreate(ctx, ana, bea)
	assert.True(t, apperrors.Is(err, apperrors.ErrAccessDenied))
	_, err = h.conversations.GetOrCreate(ctx, bea, ana)
	assert.True(t, apperrors.Is(err, apperrors.ErrAccessDenied))
}
