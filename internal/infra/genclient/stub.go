package genclient

import (
	"context"
	"fmt"

	"github.com/ideaforge/ideaforge/internal/domain"
)

// Stub returns canned artifacts without any network call (dev/test).
type Stub struct{}

// Invoke fabricates an artifact whose top-level key matches the feature's
// expected payload key, mirroring the real endpoint's shape contract.
func (s *Stub) Invoke(_ context.Context, req domain.GenerationRequest) (map[string]any, error) {
	key := req.Feature
	if k, ok := req.Payload["payload_key"].(string); ok && k != "" {
		key = k
	}
	title, _ := req.Payload["idea_title"].(string)
	return map[string]any{
		key: map[string]any{
			"summary": fmt.Sprintf("[stub] %s for %q", req.Feature, title),
			"sections": []any{
				map[string]any{"heading": "Overview", "body": "Stubbed analysis content."},
				map[string]any{"heading": "Next Steps", "body": "Replace the stub with the live endpoint."},
			},
		},
	}, nil
}
