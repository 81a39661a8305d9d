package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	SessionID string `json:"session_id" jsonschema:"the session whose documents ground the answer"`
	Question  string `json:"question" jsonschema:"the question to answer"`
	Provider  string `json:"provider,omitempty" jsonschema:"generation provider for this question (ollama, openai or anthropic)"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"passages to retrieve for this question, 1 to 10"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	MessageID string         `json:"message_id"`
	Answer    string         `json:"answer"`
	Sources   []SourceOutput `json:"sources"`
}

// SourceOutput is one passage an answer was grounded on.
type SourceOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Locator    string  `json:"locator,omitempty"`
	Similarity float64 `json:"similarity"`
}

// UploadInput is the input schema for the upload_document tool.
type UploadInput struct {
	Path string `json:"path" jsonschema:"absolute path of a .pdf, .txt, .pptx or .ipynb file"`
	Wait bool   `json:"wait,omitempty" jsonschema:"wait until the document is indexed or has failed"`
}

// DocumentInput is the input schema for the document_status tool.
type DocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document id"`
}

// DocumentOutput describes a document.
type DocumentOutput struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	Size       int64  `json:"size"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// CreateSessionInput is the input schema for the create_session tool.
type CreateSessionInput struct {
	Title       string   `json:"title,omitempty" jsonschema:"session title"`
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"indexed documents to bind to the session"`
	Provider    string   `json:"provider,omitempty" jsonschema:"default generation provider for the session"`
}

// SessionOutput describes a session.
type SessionOutput struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Provider      string   `json:"provider,omitempty"`
	DocumentIDs   []string `json:"document_ids"`
	TotalMessages int      `json:"total_messages"`
}

// BindInput is the input schema for the bind_documents tool.
type BindInput struct {
	SessionID   string   `json:"session_id" jsonschema:"the session to change"`
	DocumentIDs []string `json:"document_ids" jsonschema:"documents to add, remove or replace the bound set with"`
	Mode        string   `json:"mode,omitempty" jsonschema:"add (default), remove or replace"`
}

// ListSessionsInput is the input schema for the list_sessions tool.
type ListSessionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of sessions to return (default 20)"`
}

// ListSessionsOutput is the output schema for the list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionOutput `json:"sessions"`
	Count    int             `json:"count"`
}

// defaultSessionLimit is used when list_sessions has no limit.
const defaultSessionLimit = 20

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the documents bound to a session",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_session",
		Description: "Create a chat session bound to indexed documents",
	}, s.handleCreateSession)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bind_documents",
		Description: "Add, remove or replace the documents a session may retrieve from",
	}, s.handleBindDocuments)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List chat sessions, most recently active first",
	}, s.handleListSessions)

	if s.ports.Documents == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "upload_document",
		Description: "Upload a local study file for indexing",
	}, s.handleUpload)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_status",
		Description: "Show the processing state of a document",
	}, s.handleDocumentStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List uploaded documents with their processing state",
	}, s.handleListDocuments)
}

// handleAsk streams an answer and returns it once complete.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	output := AskOutput{Sources: []SourceOutput{}}

	stream, err := s.ports.Chat.Answer(ctx, driving.AnswerRequest{
		SessionID: input.SessionID,
		Question:  input.Question,
		Provider:  domain.AIProvider(input.Provider),
		TopK:      input.TopK,
	})
	if err != nil {
		return toolError(err), output, nil
	}

	var answer strings.Builder
	for ev := range stream {
		switch ev.Type {
		case domain.EventContentDelta:
			answer.WriteString(ev.Delta)
		case domain.EventSourceList:
			for _, src := range ev.Sources {
				output.Sources = append(output.Sources, SourceOutput{
					DocumentID: src.DocumentID,
					Filename:   src.Filename,
					Locator:    src.Locator,
					Similarity: src.Similarity,
				})
			}
		case domain.EventDone:
			output.MessageID = ev.MessageID
		case domain.EventError:
			return textResult(true, ev.Error), AskOutput{Sources: []SourceOutput{}}, nil
		}
	}
	if output.MessageID == "" {
		// Stream closed without a terminal event: the request was cancelled.
		return textResult(true, "request cancelled"), AskOutput{Sources: []SourceOutput{}}, nil
	}

	output.Answer = answer.String()
	return nil, output, nil
}

// handleCreateSession creates a session.
func (s *Server) handleCreateSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateSessionInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	session, err := s.ports.Sessions.Create(ctx, driving.CreateSessionRequest{
		Title:       input.Title,
		Provider:    domain.AIProvider(input.Provider),
		DocumentIDs: input.DocumentIDs,
	})
	if err != nil {
		return toolError(err), SessionOutput{DocumentIDs: []string{}}, nil
	}
	return nil, sessionOutput(session), nil
}

// handleBindDocuments changes a session's bound documents.
func (s *Server) handleBindDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BindInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	mode := driving.BindMode(input.Mode)
	if mode == "" {
		mode = driving.BindAdd
	}

	if err := s.ports.Sessions.BindDocuments(ctx, input.SessionID, input.DocumentIDs, mode); err != nil {
		return toolError(err), SessionOutput{DocumentIDs: []string{}}, nil
	}
	session, err := s.ports.Sessions.Get(ctx, input.SessionID)
	if err != nil {
		return toolError(err), SessionOutput{DocumentIDs: []string{}}, nil
	}
	return nil, sessionOutput(session), nil
}

// handleListSessions lists sessions.
func (s *Server) handleListSessions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListSessionsInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSessionLimit
	}

	sessions, err := s.ports.Sessions.List(ctx, limit, 0)
	if err != nil {
		return nil, ListSessionsOutput{}, fmt.Errorf("listing sessions: %w", err)
	}

	output := ListSessionsOutput{
		Sessions: make([]SessionOutput, len(sessions)),
		Count:    len(sessions),
	}
	for i := range sessions {
		output.Sessions[i] = sessionOutput(&sessions[i])
	}
	return nil, output, nil
}

// handleUpload uploads a file from the local filesystem.
func (s *Server) handleUpload(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UploadInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	if !filepath.IsAbs(input.Path) {
		return textResult(true, "path must be absolute"), DocumentOutput{}, nil
	}
	data, err := os.ReadFile(input.Path)
	if err != nil {
		return textResult(true, fmt.Sprintf("cannot read %s: %v", input.Path, err)), DocumentOutput{}, nil
	}

	doc, err := s.ports.Documents.Upload(ctx, filepath.Base(input.Path), data)
	if err != nil {
		return toolError(err), DocumentOutput{}, nil
	}
	if input.Wait {
		doc, err = s.ports.Documents.WaitForState(ctx, doc.ID)
		if err != nil {
			return toolError(err), DocumentOutput{}, nil
		}
	}
	return nil, documentOutput(doc), nil
}

// handleDocumentStatus reports a document's state.
func (s *Server) handleDocumentStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	doc, err := s.ports.Documents.Get(ctx, input.DocumentID)
	if err != nil {
		return toolError(err), DocumentOutput{}, nil
	}
	return nil, documentOutput(doc), nil
}

// handleListDocuments lists every document.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.ports.Documents.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, fmt.Errorf("listing documents: %w", err)
	}

	output := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = documentOutput(&docs[i])
	}
	return nil, output, nil
}

func documentOutput(doc *domain.Document) DocumentOutput {
	return DocumentOutput{
		ID:         doc.ID,
		Filename:   doc.OriginalFilename,
		FileType:   doc.FileType.String(),
		State:      doc.State.String(),
		Error:      doc.ErrorReason,
		ChunkCount: doc.ChunkCount,
		Size:       doc.Size,
	}
}

func sessionOutput(session *domain.ChatSession) SessionOutput {
	ids := session.DocumentIDs
	if ids == nil {
		ids = []string{}
	}
	return SessionOutput{
		ID:            session.ID,
		Title:         session.Title,
		Provider:      session.Provider.String(),
		DocumentIDs:   ids,
		TotalMessages: session.TotalMessages,
	}
}

// toolError reports caller mistakes as a tool error the model can read.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrDocumentNotReady),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrFileTooLarge),
		errors.Is(err, domain.ErrEmptyContent):
		return textResult(true, err.Error())
	default:
		return textResult(true, "internal error: "+err.Error())
	}
}

func textResult(isError bool, text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
