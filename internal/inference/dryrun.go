package inference

import (
	"context"
	"encoding/json"

	"github.com/tjfontaine/promptpub/internal/api/messages"
)

const dryRunPreviewLen = 800

// DryRunTransport answers every request locally with a deterministic
// content-block payload derived from the prompt. It lets the pipeline run
// end to end without credentials.
type DryRunTransport struct{}

// CreateMessage implements Transport.
func (DryRunTransport) CreateMessage(ctx context.Context, req *messages.MessagesRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var prompt string
	for _, m := range req.Messages {
		if m.Role == "user" {
			prompt = m.Content
		}
	}
	if r := []rune(prompt); len(r) > dryRunPreviewLen {
		prompt = string(r[:dryRunPreviewLen])
	}
	text := "DRY RUN (no inference call)\n\n" +
		"This output validates template rendering, formatting and publishing.\n\n" +
		"Rendered prompt preview:\n" +
		"------------------------\n" +
		prompt
	body := map[string]any{
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	}
	return json.Marshal(body)
}
