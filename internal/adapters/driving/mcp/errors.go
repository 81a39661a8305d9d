// Package mcp provides an MCP (Model Context Protocol) server adapter for Study Buddy.
// It lets AI assistants upload study material, manage sessions and ask grounded questions.
package mcp

import "errors"

var (
	// ErrMissingChatService is returned when the chat service is not provided.
	ErrMissingChatService = errors.New("mcp: chat service is required")

	// ErrMissingSessionService is returned when the session service is not provided.
	ErrMissingSessionService = errors.New("mcp: session service is required")
)
