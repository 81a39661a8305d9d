package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// URIScheme is the custom URI scheme for Study Buddy resources.
	uriScheme = "studybuddy://"

	// maxMessages is the number of turns returned by the messages resource.
	maxMessages = 100
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Template for a session's conversation.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "sessions/{sessionId}/messages",
		Name:        "session-messages",
		Description: "Completed question and answer turns of a session",
		MIMEType:    "application/json",
	}, s.handleMessagesResource)

	if s.ports.Documents == nil {
		return
	}

	// Static resource for listing documents.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "List of all uploaded documents",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for a single document.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document",
		Description: "State and metadata of a specific document",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

// handleDocumentsResource returns a list of all documents.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Documents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]DocumentOutput, len(docs))
	for i := range docs {
		infos[i] = documentOutput(&docs[i])
	}
	return jsonResource(req.Params.URI, infos)
}

// handleDocumentResource returns one document.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract documentId from URI: studybuddy://documents/{documentId}
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Documents.Get(ctx, docID)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	type docInfo struct {
		DocumentOutput
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	return jsonResource(req.Params.URI, docInfo{DocumentOutput: documentOutput(doc), Metadata: doc.Metadata})
}

// handleMessagesResource returns the turns of a session.
func (s *Server) handleMessagesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract sessionId from URI: studybuddy://sessions/{sessionId}/messages
	sessionID := extractSessionID(req.Params.URI)
	if sessionID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	msgs, err := s.ports.Sessions.Messages(ctx, sessionID, maxMessages, 0)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	type messageInfo struct {
		ID       string         `json:"id"`
		Question string         `json:"question"`
		Answer   string         `json:"answer"`
		Provider string         `json:"provider,omitempty"`
		Sources  []SourceOutput `json:"sources"`
	}

	infos := make([]messageInfo, len(msgs))
	for i := range msgs {
		sources := make([]SourceOutput, len(msgs[i].Sources))
		for j, src := range msgs[i].Sources {
			sources[j] = SourceOutput{
				DocumentID: src.DocumentID,
				Filename:   src.Filename,
				Locator:    src.Locator,
				Similarity: src.Similarity,
			}
		}
		infos[i] = messageInfo{
			ID:       msgs[i].ID,
			Question: msgs[i].Question,
			Answer:   msgs[i].Answer,
			Provider: msgs[i].Provider.String(),
			Sources:  sources,
		}
	}
	return jsonResource(req.Params.URI, infos)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSessionID extracts the session ID from a URI like studybuddy://sessions/{sessionId}/messages.
func extractSessionID(uri string) string {
	const prefix = uriScheme + "sessions/"
	const suffix = "/messages"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}

// extractDocumentID extracts the document ID from a URI like studybuddy://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
