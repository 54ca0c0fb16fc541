package app

import "errors"

var (
	// ErrUnknownTool indicates the model asked for a tool that does not
	// exist. The request fails rather than guessing.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrGatewayNotConfigured indicates an LLM-backed path was called
	// without a model endpoint configured.
	ErrGatewayNotConfigured = errors.New("model gateway not configured")
)
