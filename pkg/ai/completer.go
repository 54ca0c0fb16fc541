package ai

import (
	"context"
	"errors"
)

// ChatMessage is one turn in the completion request, in wire order.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter bridges to a chat-completion endpoint. Implementations must
// be safe for concurrent use; callers own retry policy.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

var (
	// ErrBackendUnavailable marks an unreachable, timed-out, or failing
	// model endpoint. It is never swallowed into an empty reply.
	ErrBackendUnavailable = errors.New("model backend unavailable")
	// ErrConfigMissing marks a gateway constructed without the endpoint
	// configuration it needs.
	ErrConfigMissing = errors.New("model gateway not configured")
)
