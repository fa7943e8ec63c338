package aireply

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/presence"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/repository/sqlite"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/snowflake"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/workerpool"
)

const (
	human   int64 = 1
	soldier int64 = 2
	friend  int64 = 3
)

type scriptedProvider struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	calls   int
	prompts []string
}

func (p *scriptedProvider) Generate(_ context.Context, _ string, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	p.prompts = append(p.prompts, prompt)
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.outputs) {
		return p.outputs[i], nil
	}
	return "", ErrEmptyResponse
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type engineHarness struct {
	db            *sqlite.DB
	conversations *service.ConversationService
	recorder      *event.Recorder
	sleeper       *recordingSleeper
	conv          *model.ConversationSummary
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, u := range []*model.User{
		{ID: human, Nickname: "ana", Name: "Ana"},
		{ID: soldier, Nickname: "jane", Name: "Jane Doe", IsAutomated: true, Archetype: "soldier"},
		{ID: friend, Nickname: "caio", Name: "Caio"},
	} {
		require.NoError(t, db.UpsertUser(ctx, u))
	}
	require.NoError(t, db.SetFriends(ctx, human, soldier, true))
	require.NoError(t, db.SetFriends(ctx, human, friend, true))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	repos := db.Repositories()

	h := &engineHarness{
		db:       db,
		recorder: &event.Recorder{},
		sleeper:  &recordingSleeper{},
	}
	h.conversations = service.NewConversationService(repos, service.NewFriendshipGate(repos.Relations), presence.NewLocal(), node)

	h.conv, err = h.conversations.GetOrCreate(ctx, human, soldier)
	require.NoError(t, err)
	return h
}

func (h *engineHarness) engine(t *testing.T, provider Provider) *Engine {
	t.Helper()
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	return NewEngine(Options{
		Store:     h.conversations,
		Provider:  provider,
		Publisher: h.recorder,
		Catalog:   catalog,
		Policy: RetryPolicy{
			MaxAttempts:   DefaultMaxAttempts,
			FallbackDelay: DefaultFallbackDelay,
			MaxDelay:      DefaultMaxDelay,
			Sleep:         h.sleeper.Sleep,
		},
	})
}

func (h *engineHarness) say(t *testing.T, conversationID, senderID int64, content string) *model.Message {
	t.Helper()
	msg, _, err := h.conversations.Append(context.Background(), service.AppendParams{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        &content,
		Type:           model.MessageTypeText,
	})
	require.NoError(t, err)
	return msg
}

func (h *engineHarness) messages(t *testing.T, conversationID int64) []*model.Message {
	t.Helper()
	msgs, err := h.conversations.RecentMessages(context.Background(), conversationID, 50)
	require.NoError(t, err)
	return msgs
}

func TestEngine_RepliesInCharacter(t *testing.T) {
	h := newEngineHarness(t)
	trigger := h.say(t, h.conv.ID, human, "oi")
	provider := &scriptedProvider{outputs: []string{"```json\n{\"content\": \"Listen up, maggot!\", \"responseType\": \"text\"}\n```"}}

	view, err := h.engine(t, provider).Reply(context.Background(), service.ReplyJob{
		ConversationID: h.conv.ID, HumanID: human, BotID: soldier, TriggerMessageID: trigger.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, soldier, view.Sender.ID)
	assert.True(t, view.Sender.IsAutomated)
	assert.Equal(t, model.MessageTypeText, view.Type)
	require.NotNil(t, view.Content)
	assert.Equal(t, "Listen up, maggot!", *view.Content)
	assert.Contains(t, provider.prompts[0], "Latest message from ana: oi")

	msgs := h.messages(t, h.conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, soldier, msgs[1].SenderID)

	sent := h.recorder.For(human, event.NameMessage)
	require.Len(t, sent, 1)
	assert.Equal(t, view, sent[0].Data)
	assert.Empty(t, h.recorder.For(soldier, event.NameMessage))
}

func TestEngine_SkipsHumanRecipients(t *testing.T) {
	h := newEngineHarness(t)
	conv, err := h.conversations.GetOrCreate(context.Background(), human, friend)
	require.NoError(t, err)
	trigger := h.say(t, conv.ID, human, "hey")
	provider := &scriptedProvider{outputs: []string{"should not be used"}}

	view, err := h.engine(t, provider).Reply(context.Background(), service.ReplyJob{
		ConversationID: conv.ID, HumanID: human, BotID: friend, TriggerMessageID: trigger.ID,
	})
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.Zero(t, provider.calls)
	assert.Len(t, h.messages(t, conv.ID), 1)
}

func TestEngine_DisabledWithoutProvider(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")
	engine := h.engine(t, nil)

	assert.False(t, engine.Enabled())
	view, err := engine.Reply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
	require.NoError(t, err)
	assert.Nil(t, view)

	_, err = engine.GenerateText(context.Background(), soldier, "")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestEngine_RetriesOnceOnRateLimit(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")
	provider := &scriptedProvider{
		errs:    []error{errors.New("429 Too Many Requests: please retry in 3s")},
		outputs: []string{"", `{"content":"Back in formation.","responseType":"text"}`},
	}

	view, err := h.engine(t, provider).Reply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, []time.Duration{3 * time.Second}, h.sleeper.delays)
	assert.Len(t, h.messages(t, h.conv.ID), 2)
}

func TestEngine_GivesUpAfterSecondRateLimit(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")
	limited := errors.New("resource exhausted: quota exceeded")
	provider := &scriptedProvider{errs: []error{limited, limited, limited}}

	view, err := h.engine(t, provider).Reply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
	assert.ErrorIs(t, err, limited)
	assert.Nil(t, view)

	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, []time.Duration{DefaultFallbackDelay}, h.sleeper.delays)
	assert.Len(t, h.messages(t, h.conv.ID), 1)
	assert.Empty(t, h.recorder.For(human, event.NameMessage))
}

func TestEngine_NoRetryOnOtherErrors(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")
	provider := &scriptedProvider{errs: []error{errors.New("invalid api key")}}

	_, err := h.engine(t, provider).Reply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
	assert.Error(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Empty(t, h.sleeper.delays)
}

func TestEngine_MediaReplies(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantType model.MessageType
		wantURL  string
	}{
		{"audio uses archetype clip", `{"content":"","responseType":"audio","attachmentHint":"shout"}`, model.MessageTypeAudio, "/media/bots/soldier/maggots.ogg"},
		{"gif keeps caption", `{"content":"o7","responseType":"gif","attachmentHint":"salute"}`, model.MessageTypeText, "/media/bots/soldier/salute.gif"},
		{"image falls back to default", `{"content":"us","responseType":"image"}`, model.MessageTypeText, "/media/bots/default/group.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEngineHarness(t)
			h.say(t, h.conv.ID, human, "oi")

			view, err := h.engine(t, &scriptedProvider{outputs: []string{tt.output}}).Reply(context.Background(),
				service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
			require.NoError(t, err)
			require.NotNil(t, view)

			assert.Equal(t, tt.wantType, view.Type)
			require.Len(t, view.Attachments, 1)
			assert.Equal(t, tt.wantURL, view.Attachments[0].URL)
		})
	}
}

func TestEngine_EmptyReplyIsDropped(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")

	view, err := h.engine(t, &scriptedProvider{outputs: []string{`{"content":"  ","responseType":"text"}`}}).Reply(context.Background(),
		service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier})
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.Len(t, h.messages(t, h.conv.ID), 1)
}

func TestEngine_GenerateText(t *testing.T) {
	h := newEngineHarness(t)
	provider := &scriptedProvider{outputs: []string{"\n\"Drills at dawn. No excuses.\"\nsecond line"}}

	line, err := h.engine(t, provider).GenerateText(context.Background(), soldier, "training")
	require.NoError(t, err)
	assert.Equal(t, "Drills at dawn. No excuses.", line)
	assert.Contains(t, provider.prompts[0], "about: training")
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 12*time.Second, p.Delay(errors.New("429: retry in 12s")))
	assert.Equal(t, 1500*time.Millisecond, p.Delay(errors.New(`{"retryDelay": "1.5s"}`)))
	assert.Equal(t, DefaultFallbackDelay, p.Delay(errors.New("too many requests")))
	assert.Equal(t, DefaultMaxDelay, p.Delay(errors.New("429: retry in 600s")))
	assert.Equal(t, DefaultMaxDelay, p.Delay(errors.New("429: retry in 99999999999s")))

	hint, ok := RetryHint(errors.New("429: retry in 100000000000000000000000000000s"))
	assert.True(t, ok)
	assert.Equal(t, DefaultMaxDelay, hint)

	loose := RetryPolicy{FallbackDelay: 2 * time.Minute, MaxDelay: 2 * time.Minute}
	assert.Equal(t, DefaultMaxDelay, loose.Delay(errors.New("too many requests")))
	assert.Equal(t, DefaultMaxDelay, loose.Delay(errors.New("429: retry in 90s")))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(errors.New("status 429")))
	assert.True(t, IsRateLimited(errors.New("Too Many Requests")))
	assert.True(t, IsRateLimited(errors.New("quota exceeded")))
	assert.True(t, IsRateLimited(&anthropic.Error{StatusCode: 429}))
	assert.False(t, IsRateLimited(errors.New("bad request")))
	assert.False(t, IsRateLimited(nil))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Reply
	}{
		{"plain json", `{"content":"hi","responseType":"emoji"}`, Reply{Content: "hi", ResponseType: ResponseEmoji}},
		{"fenced", "```json\n{\"content\":\"hi\",\"responseType\":\"GIF\",\"attachmentHint\":\" wave \"}\n```", Reply{Content: "hi", ResponseType: ResponseGIF, AttachmentHint: "wave"}},
		{"wrapped in prose", `Sure! {"content":"hi","responseType":"text"} hope that helps`, Reply{Content: "hi", ResponseType: ResponseText}},
		{"unknown type", `{"content":"hi","responseType":"video"}`, Reply{Content: "hi", ResponseType: ResponseText}},
		{"raw text", "  just words  ", Reply{Content: "just words", ResponseType: ResponseText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReply(tt.raw))
		})
	}
}

func TestHistoryTurns(t *testing.T) {
	hello := "hello"
	msgs := []*model.Message{
		{SenderID: human, Content: &hello},
		{SenderID: soldier, Attachments: model.Attachments{{URL: "/a.ogg", Type: "audio"}}},
	}

	turns := HistoryTurns(msgs, soldier)
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "hello"}, turns[0])
	assert.Equal(t, Turn{Role: RoleModel, Text: "[media]"}, turns[1])
}

func TestCatalog_Select(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
archetypes:
  default:
    - {name: wave, type: GIF, url: /d/wave.gif, tags: [hi]}
  medic:
    - {name: heal, type: audio, url: /m/heal.ogg}
    - {name: uber, type: audio, url: /m/uber.ogg, tags: [charge]}
`))
	require.NoError(t, err)

	e, ok := catalog.Select("Medic", "audio", "charge")
	require.True(t, ok)
	assert.Equal(t, "/m/uber.ogg", e.URL)

	e, ok = catalog.Select("medic", "audio", "nothing matches")
	require.True(t, ok)
	assert.Equal(t, "/m/heal.ogg", e.URL)

	e, ok = catalog.Select("medic", "gif", "")
	require.True(t, ok)
	assert.Equal(t, "/d/wave.gif", e.URL)

	_, ok = catalog.Select("medic", "image", "")
	assert.False(t, ok)

	_, err = ParseCatalog([]byte("archetypes:\n  x:\n    - {name: broken, type: gif}\n"))
	assert.Error(t, err)
}

func TestPersonaFor(t *testing.T) {
	assert.Equal(t, "soldier", PersonaFor("SOLDIER").Archetype)
	assert.NotEmpty(t, PersonaFor("unknown").Description)
}

type fakeMessager struct {
	params anthropic.MessageNewParams
	resp   *anthropic.Message
	err    error
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.resp, f.err
}

func TestAnthropicProvider_Generate(t *testing.T) {
	m := &fakeMessager{resp: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: " first "},
		{Type: "thinking"},
		{Type: "text", Text: "second "},
	}}}
	p := NewAnthropicProviderWith(m, "", 0)

	out, err := p.Generate(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "first second", out)
	assert.Equal(t, int64(512), m.params.MaxTokens)
	require.Len(t, m.params.System, 1)
	assert.Equal(t, "be brief", m.params.System[0].Text)

	m.resp = &anthropic.Message{}
	_, err = p.Generate(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestReplyTask_Payload(t *testing.T) {
	task, err := NewReplyTask(service.ReplyJob{ConversationID: 7, HumanID: 1, BotID: 2, TriggerMessageID: 99})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeReply, task.Type())
	assert.True(t, strings.Contains(string(task.Payload()), `"triggerMessageId":"99"`))
}

func TestPoolScheduler(t *testing.T) {
	h := newEngineHarness(t)
	h.say(t, h.conv.ID, human, "oi")
	pool := workerpool.New(1, 4, slog.Default())
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	disabled := NewPoolScheduler(h.engine(t, nil), pool, time.Second, nil)
	require.NoError(t, disabled.ScheduleReply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier}))

	provider := &scriptedProvider{outputs: []string{`{"content":"Atten-hut!","responseType":"text"}`}}
	scheduler := NewPoolScheduler(h.engine(t, provider), pool, time.Second, nil)
	require.NoError(t, scheduler.ScheduleReply(context.Background(), service.ReplyJob{ConversationID: h.conv.ID, HumanID: human, BotID: soldier}))

	assert.Eventually(t, func() bool {
		return len(h.recorder.For(human, event.NameMessage)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.messages(t, h.conv.ID), 2)
}

func TestDispatcherToReply(t *testing.T) {
	tests := []struct {
		name      string
		provider  *scriptedProvider
		wantCalls int
		wantMsgs  int
	}{
		{
			name:      "bot answers",
			provider:  &scriptedProvider{outputs: []string{`{"content":"Sound off!","responseType":"text"}`}},
			wantCalls: 1,
			wantMsgs:  2,
		},
		{
			name: "rate limited twice",
			provider: &scriptedProvider{errs: []error{
				errors.New("429 too many requests"),
				errors.New("429 too many requests"),
			}},
			wantCalls: 2,
			wantMsgs:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEngineHarness(t)
			ctx := context.Background()

			pool := workerpool.New(2, 16, slog.Default())
			t.Cleanup(func() { pool.Shutdown(context.Background()) })

			scheduler := NewPoolScheduler(h.engine(t, tt.provider), pool, time.Second, nil)
			dispatcher := service.NewDispatcherService(h.conversations, nil, h.recorder, scheduler, pool, time.Second)

			content := "reporting for duty?"
			view, err := dispatcher.Send(ctx, human, &service.SendRequest{ConversationID: h.conv.ID, Content: &content})
			require.NoError(t, err)
			require.NotNil(t, view)
			assert.Equal(t, model.MessageTypeText, view.Type)

			require.Eventually(t, func() bool {
				return tt.provider.callCount() == tt.wantCalls
			}, 2*time.Second, 10*time.Millisecond)

			if tt.wantMsgs == 2 {
				require.Eventually(t, func() bool {
					return len(h.recorder.For(human, event.NameMessage)) == 1
				}, 2*time.Second, 10*time.Millisecond)
			} else {
				time.Sleep(50 * time.Millisecond)
				assert.Equal(t, []time.Duration{DefaultFallbackDelay}, h.sleeper.Delays())
				assert.Empty(t, h.recorder.For(human, event.NameMessage))
			}

			msgs := h.messages(t, h.conv.ID)
			require.Len(t, msgs, tt.wantMsgs)
			assert.Equal(t, view.ID, msgs[0].ID)
			if tt.wantMsgs == 2 {
				assert.Equal(t, soldier, msgs[1].SenderID)
				assert.Equal(t, model.MessageTypeText, msgs[1].Type)
				require.NotNil(t, msgs[1].Content)
				assert.Equal(t, "Sound off!", *msgs[1].Content)
			}
		})
	}
}
