package inference

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// responseShape is one of the text-bearing layouts a response payload may
// use. Each variant knows how to pull its text out.
type responseShape interface {
	kind() string
	text() string
}

// contentBlocksShape: {"content": [{"type": "text", "text": "..."}, ...]}.
type contentBlocksShape struct {
	blocks []any
}

func (contentBlocksShape) kind() string { return "content_blocks" }

func (s contentBlocksShape) text() string {
	var b strings.Builder
	for _, item := range s.blocks {
		block, ok := item.(map[string]any)
		if !ok || block["type"] != "text" {
			continue
		}
		if t, ok := block["text"].(string); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

// completionShape: {"completion": "..."}.
type completionShape struct {
	completion string
}

func (completionShape) kind() string { return "completion" }

func (s completionShape) text() string { return s.completion }

// nestedMessageShape: {"output": {"message": {"content": [{"text": "..."}]}}}.
type nestedMessageShape struct {
	blocks []any
}

func (nestedMessageShape) kind() string { return "output_message" }

func (s nestedMessageShape) text() string {
	var b strings.Builder
	for _, item := range s.blocks {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := block["text"].(string); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

// decodeShapes returns the shapes present in payload, in extraction
// priority order.
func decodeShapes(payload map[string]any) []responseShape {
	var shapes []responseShape

	if blocks, ok := payload["content"].([]any); ok {
		shapes = append(shapes, contentBlocksShape{blocks: blocks})
	}
	if completion, ok := payload["completion"].(string); ok {
		shapes = append(shapes, completionShape{completion: completion})
	}
	if output, ok := payload["output"].(map[string]any); ok {
		if msg, ok := output["message"].(map[string]any); ok {
			if blocks, ok := msg["content"].([]any); ok {
				shapes = append(shapes, nestedMessageShape{blocks: blocks})
			}
		}
	}
	return shapes
}

// ExtractText returns the first non-blank text found in raw, trying the
// content block list, then the flat completion string, then the nested
// output message. A payload with no usable text yields ErrEmptyResponse; a
// payload that is not JSON yields a permanent malformed-response error.
func ExtractText(raw []byte) (string, error) {
	text, _, err := extract(raw)
	return text, err
}

func extract(raw []byte) (string, string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON that is not an object carries no known shape.
			return "", "", errors.WithStack(domain.ErrEmptyResponse)
		}
		return "", "", domain.NewAPIError(domain.ErrorTypeInvalidRequest, "decode response: "+err.Error()).
			WithCode(domain.ErrorCodeMalformedResponse)
	}

	for _, shape := range decodeShapes(payload) {
		if t := strings.TrimSpace(shape.text()); t != "" {
			return t, shape.kind(), nil
		}
	}
	return "", "", errors.WithStack(domain.ErrEmptyResponse)
}
