package aireply

import (
	"encoding/json"
	"strings"
)

// Response types the provider may choose.
const (
	ResponseText  = "text"
	ResponseEmoji = "emoji"
	ResponseAudio = "audio"
	ResponseImage = "image"
	ResponseGIF   = "gif"
)

// Reply is the decoded provider answer.
type Reply struct {
	Content        string `json:"content"`
	ResponseType   string `json:"responseType"`
	AttachmentHint string `json:"attachmentHint"`
}

// ParseReply decodes the provider output. Output that is not the expected
// JSON object becomes a plain text reply.
func ParseReply(raw string) Reply {
	clean := stripCodeFences(raw)

	var r Reply
	if err := json.Unmarshal([]byte(clean), &r); err != nil {
		// some models wrap the object in prose
		if start, end := strings.Index(clean, "{"), strings.LastIndex(clean, "}"); start >= 0 && end > start {
			if err := json.Unmarshal([]byte(clean[start:end+1]), &r); err != nil {
				return Reply{Content: strings.TrimSpace(raw), ResponseType: ResponseText}
			}
		} else {
			return Reply{Content: strings.TrimSpace(raw), ResponseType: ResponseText}
		}
	}

	r.Content = strings.TrimSpace(r.Content)
	r.ResponseType = strings.ToLower(strings.TrimSpace(r.ResponseType))
	r.AttachmentHint = strings.TrimSpace(r.AttachmentHint)
	switch r.ResponseType {
	case ResponseText, ResponseEmoji, ResponseAudio, ResponseImage, ResponseGIF:
	default:
		r.ResponseType = ResponseText
	}
	return r
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

// firstLine returns the first non-empty line without surrounding quotes.
func firstLine(s string) string {
	for _, line := range strings.Split(stripCodeFences(s), "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, `"'`)
		if line != "" {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
