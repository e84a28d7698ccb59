package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/searchproxy"
)

// Limits for personal document grounding. Tool results aim well under
// the model's context window at roughly 4 chars per token.
const (
	MaxInitialChars      = 25000
	MaxFullChars         = 50000
	MaxSearchResultChars = 8000
)

const notIdentifiedMsg = "Error: Unable to identify user. Please ensure you're properly authenticated."

func formatUploadDate(uploadedAt string) string {
	if !strings.Contains(uploadedAt, "T") {
		return uploadedAt
	}
	if ts, err := time.Parse(time.RFC3339, uploadedAt); err == nil {
		return ts.Format("2006-01-02 15:04")
	}
	return uploadedAt
}

// ListMyDocumentsTool lists the caller's uploaded documents.
type ListMyDocumentsTool struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewListMyDocumentsTool(log *logger.Logger, proxy searchproxy.Proxy) *ListMyDocumentsTool {
	return &ListMyDocumentsTool{log: log, proxy: proxy}
}

func (t *ListMyDocumentsTool) Name() string { return "list_my_documents" }

func (t *ListMyDocumentsTool) Capabilities() Capability {
	return WantsIndexName | WantsFingerprint
}

func (t *ListMyDocumentsTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if inv.Fingerprint == "" {
		return notIdentifiedMsg, nil
	}
	index := strArg(inv.Input, "index", inv.IndexName)

	documents, err := t.proxy.ListDocuments(ctx, index, inv.Fingerprint)
	if err != nil {
		t.log.Error("Failed to list personal documents", "error", err)
		return fmt.Sprintf("Error listing documents: %v", err), nil
	}
	if len(documents) == 0 {
		return "You haven't uploaded any documents yet. You can upload PDFs using the document upload feature.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d uploaded document(s):\n\n", len(documents))
	for i, doc := range documents {
		title := doc.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "%d. **%s**\n", i+1, title)
		fmt.Fprintf(&sb, "   - Document ID: `%s`\n", doc.ID)
		fmt.Fprintf(&sb, "   - Uploaded: %s\n", formatUploadDate(doc.UploadedAt))
		fmt.Fprintf(&sb, "   - Pages: %d, Chunks: %d\n\n", doc.PageCount, doc.ChunkCount)
	}
	return sb.String(), nil
}

// DeleteMyDocumentTool removes one of the caller's documents and all
// its chunks.
type DeleteMyDocumentTool struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewDeleteMyDocumentTool(log *logger.Logger, proxy searchproxy.Proxy) *DeleteMyDocumentTool {
	return &DeleteMyDocumentTool{log: log, proxy: proxy}
}

func (t *DeleteMyDocumentTool) Name() string { return "delete_my_document" }

func (t *DeleteMyDocumentTool) Capabilities() Capability {
	return WantsIndexName | WantsFingerprint
}

func (t *DeleteMyDocumentTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if inv.Fingerprint == "" {
		return notIdentifiedMsg, nil
	}
	documentID := strArg(inv.Input, "document_id", "")
	if documentID == "" {
		return "Error: No document ID provided. Use list_my_documents to see your documents and their IDs.", nil
	}
	index := strArg(inv.Input, "index", inv.IndexName)

	deleted, err := t.proxy.DeleteDocument(ctx, index, inv.Fingerprint, documentID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return fmt.Sprintf("Document with ID `%s` was not found. It may have already been deleted, or you may not have permission to delete it.", documentID), nil
		}
		if stderrors.Is(err, errors.ErrUnauthorized) {
			return "You don't have permission to delete this document. You can only delete documents you uploaded.", nil
		}
		t.log.Error("Failed to delete personal document", "document_id", documentID, "error", err)
		return fmt.Sprintf("Error deleting document: %v", err), nil
	}
	if deleted == 0 {
		return fmt.Sprintf("Document `%s` was not found or has already been deleted.", documentID), nil
	}
	return fmt.Sprintf("Successfully deleted document `%s` and all its chunks (%d chunk(s) removed).", documentID, deleted), nil
}

// FetchPersonalDocumentTool reassembles a full uploaded document and
// stores it in the conversation cache for follow-up searches.
type FetchPersonalDocumentTool struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewFetchPersonalDocumentTool(log *logger.Logger, proxy searchproxy.Proxy) *FetchPersonalDocumentTool {
	return &FetchPersonalDocumentTool{log: log, proxy: proxy}
}

func (t *FetchPersonalDocumentTool) Name() string { return "fetch_personal_document" }

func (t *FetchPersonalDocumentTool) Capabilities() Capability {
	return WantsIndexName | WantsFingerprint | WantsDocCache
}

func (t *FetchPersonalDocumentTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if inv.Fingerprint == "" {
		return notIdentifiedMsg, nil
	}
	documentID := strArg(inv.Input, "document_id", "")
	if documentID == "" {
		return "Error: No document ID provided. Use list_my_documents to see your documents and their IDs.", nil
	}
	index := strArg(inv.Input, "index", inv.IndexName)

	doc, err := t.proxy.GetDocumentContent(ctx, index, inv.Fingerprint, documentID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return fmt.Sprintf("Document with ID `%s` was not found. Use list_my_documents to see your uploaded documents.", documentID), nil
		}
		if stderrors.Is(err, errors.ErrUnauthorized) {
			return "You don't have permission to access this document. You can only access documents you uploaded.", nil
		}
		t.log.Error("Failed to fetch personal document", "document_id", documentID, "error", err)
		return fmt.Sprintf("Error fetching document: %v", err), nil
	}

	if inv.DocCache != nil {
		cached := doc.Content
		if len(cached) > MaxFullChars {
			cached = cached[:MaxFullChars]
		}
		inv.DocCache.Put(documentID, cached)
	}

	title := doc.Title
	if title == "" {
		title = "Untitled"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n**Document ID:** `%s`\n", title, documentID)
	fmt.Fprintf(&sb, "**Pages:** %d | **Chunks:** %d | **Total characters:** %d\n\n---\n\n", doc.PageCount, doc.ChunkCount, doc.TotalChars)

	if len(doc.Content) > MaxInitialChars {
		sb.WriteString(doc.Content[:MaxInitialChars])
		fmt.Fprintf(&sb, "\n\n---\n\n**[Document truncated at %d characters. Full document is %d characters.]**\n\n", MaxInitialChars, doc.TotalChars)
		sb.WriteString("I can search the full document for specific topics. What would you like me to find?")
	} else {
		sb.WriteString(doc.Content)
	}
	return sb.String(), nil
}

// SearchPersonalDocumentTool searches within one uploaded document via
// hybrid search on its already indexed chunks.
type SearchPersonalDocumentTool struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewSearchPersonalDocumentTool(log *logger.Logger, proxy searchproxy.Proxy) *SearchPersonalDocumentTool {
	return &SearchPersonalDocumentTool{log: log, proxy: proxy}
}

func (t *SearchPersonalDocumentTool) Name() string { return "search_personal_document" }

func (t *SearchPersonalDocumentTool) Capabilities() Capability {
	return WantsIndexName | WantsFingerprint | WantsDocCache
}

func (t *SearchPersonalDocumentTool) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if inv.Fingerprint == "" {
		return notIdentifiedMsg, nil
	}
	documentID := strArg(inv.Input, "document_id", "")
	if documentID == "" {
		return "Error: No document ID provided.", nil
	}
	query := strArg(inv.Input, "query", "")
	if query == "" {
		return "Error: No search query provided. Please specify what you want to find in the document.", nil
	}
	index := strArg(inv.Input, "index", inv.IndexName)

	results, err := t.proxy.Search(ctx, index, inv.Fingerprint, query, 10, "user_upload")
	if err != nil {
		t.log.Error("Personal document search failed", "document_id", documentID, "error", err)
		return fmt.Sprintf("Error searching document: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for: %s\n\n**Document:** %s\n\n---\n", query, documentID)
	found := false
	for _, r := range results {
		if !strings.HasPrefix(r.ID, documentID) {
			continue
		}
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		found = true
		fmt.Fprintf(&sb, "\n**[Relevance: %.2f]**\n\n%s\n\n---", r.Score, content)
		if sb.Len() > MaxSearchResultChars {
			break
		}
	}
	if !found {
		return fmt.Sprintf("No relevant passages found for '%s' in this document.", query), nil
	}
	return sb.String(), nil
}

var ListMyDocumentsDefinition = Definition{
	Name: "list_my_documents",
	Description: `List all documents that the user has uploaded to their personal document index.
Returns document metadata including titles, upload dates, and document IDs.
Use this when the user asks about their uploaded documents or wants to see what they've added.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"index": map[string]any{
				"type":        "string",
				"description": "The index to search (faa-agent, nrc-agent, dod-agent). Defaults to the current agent's index.",
				"enum":        []string{"faa-agent", "nrc-agent", "dod-agent"},
			},
		},
		"required": []string{},
	},
}

var DeleteMyDocumentDefinition = Definition{
	Name: "delete_my_document",
	Description: `Delete a document from the user's personal document index.
Requires the document_id which can be obtained from list_my_documents.
Use this when the user explicitly asks to remove or delete one of their uploaded documents.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_id": map[string]any{
				"type":        "string",
				"description": "The ID of the document to delete. Get this from list_my_documents.",
			},
			"index": map[string]any{
				"type":        "string",
				"description": "The index containing the document (faa-agent, nrc-agent, dod-agent). Defaults to the current agent's index.",
				"enum":        []string{"faa-agent", "nrc-agent", "dod-agent"},
			},
		},
		"required": []string{"document_id"},
	},
}

var FetchPersonalDocumentDefinition = Definition{
	Name: "fetch_personal_document",
	Description: `Fetch the complete text of an uploaded personal document.

Use this tool when:
- Search results include a personal document and you need full context to answer accurately
- User asks detailed questions about their uploaded document
- You need to verify exact wording or find specific information in the document

This retrieves and reassembles the full document text from all chunks. For large documents
(>50,000 chars), the response will be truncated with an offer to search the remainder.

The document content is authoritative - base your answers on what it actually says.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_id": map[string]any{
				"type":        "string",
				"description": "The ID of the document to fetch. Get this from list_my_documents or search results.",
			},
			"index": map[string]any{
				"type":        "string",
				"description": "The index containing the document (faa-agent, nrc-agent, dod-agent). Defaults to the current agent's index.",
				"enum":        []string{"faa-agent", "nrc-agent", "dod-agent"},
			},
		},
		"required": []string{"document_id"},
	},
}

var SearchPersonalDocumentDefinition = Definition{
	Name: "search_personal_document",
	Description: `Semantically search within a personal document for specific topics.

Use this tool when:
- fetch_personal_document returned truncated content and you need to find information in the remainder
- User asks about a specific topic that wasn't in the visible portion of a large document
- You need to find all mentions of a concept throughout a document

This performs semantic search (not just keyword matching) on the full document text,
returning the most relevant passages with surrounding context.`,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_id": map[string]any{
				"type":        "string",
				"description": "The ID of the document to search. Must have been previously fetched or will be fetched automatically.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "The topic, question, or concept to search for in the document.",
			},
			"index": map[string]any{
				"type":        "string",
				"description": "The index containing the document (faa-agent, nrc-agent, dod-agent). Defaults to the current agent's index.",
				"enum":        []string{"faa-agent", "nrc-agent", "dod-agent"},
			},
		},
		"required": []string{"document_id", "query"},
	},
}
