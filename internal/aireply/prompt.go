package aireply

import (
	"fmt"
	"strings"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/model"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	mediaPlaceholder = "[media]"
)

// Turn is one history line of the prompt.
type Turn struct {
	Role string
	Text string
}

// HistoryTurns tags each message as model when botID wrote it and user otherwise.
func HistoryTurns(msgs []*model.Message, botID int64) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := RoleUser
		if m.SenderID == botID {
			role = RoleModel
		}
		turns = append(turns, Turn{Role: role, Text: describe(m)})
	}
	return turns
}

func describe(m *model.Message) string {
	if m.HasText() {
		return strings.TrimSpace(m.Text())
	}
	return mediaPlaceholder
}

func displayName(u *model.User) string {
	if u == nil {
		return "someone"
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	if u.Name != "" {
		return u.Name
	}
	return "someone"
}

func systemPrompt(p Persona, bot *model.User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, an account on Scrapbook, a social network for a gaming community.\n", displayName(bot))
	fmt.Fprintf(&sb, "Character (%s): %s\n", p.Archetype, p.Description)
	sb.WriteString("Stay in character at all times. Never say you are an AI or a bot.\n")
	sb.WriteString("Answer in the same language the other person writes in.")
	return sb.String()
}

// ReplyPrompt renders the chat prompt. It asks for one JSON object.
func ReplyPrompt(bot, human *model.User, history []Turn, latest *model.Message) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are chatting in direct messages with %s.\n\n", displayName(human))
	if len(history) > 0 {
		sb.WriteString("Conversation so far, oldest first:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
		}
		sb.WriteString("\n")
	}

	latestText := describe(latest)
	if !latest.HasText() && len(latest.Attachments) > 0 {
		kinds := make([]string, 0, len(latest.Attachments))
		for _, a := range latest.Attachments {
			kinds = append(kinds, a.Type)
		}
		latestText = fmt.Sprintf("%s (sent %s)", mediaPlaceholder, strings.Join(kinds, ", "))
	}
	fmt.Fprintf(&sb, "Latest message from %s: %s\n\n", displayName(human), latestText)

	fmt.Fprintf(&sb, "Write %s's next reply: short and casual, one to three sentences.\n", displayName(bot))
	sb.WriteString("You may answer with a reaction instead of plain text when it fits.\n")
	sb.WriteString(`Respond with exactly one JSON object and nothing else:
{"content": "<your reply text>", "responseType": "text" | "emoji" | "audio" | "image" | "gif", "attachmentHint": "<optional keyword for the media>"}`)
	return sb.String()
}

// PostPrompt renders the one-line auto-post prompt.
func PostPrompt(bot *model.User, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "whatever is on your mind today"
	}
	return fmt.Sprintf("Write one short post for your Scrapbook profile, as %s, about: %s.\n"+
		"Output a single line of plain text. No quotes, no JSON, no explanations.", displayName(bot), topic)
}
