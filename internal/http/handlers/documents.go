package handlers

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/http/response"
	pkgerrors "github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/searchproxy"
)

const (
	maxUploadChars       = 2_000_000
	maxDocumentsPerUser  = 20
	maxChunksPerDocument = 100
	uploadChunkChars     = 6000
)

type DocumentsHandler struct {
	log   *logger.Logger
	proxy searchproxy.Proxy
}

func NewDocumentsHandler(log *logger.Logger, proxy searchproxy.Proxy) *DocumentsHandler {
	return &DocumentsHandler{log: log, proxy: proxy}
}

func (h *DocumentsHandler) fingerprint(c *gin.Context) (string, bool) {
	fp, err := middleware.Fingerprint(c)
	if err != nil || len(fp) < searchproxy.MinFingerprintLength {
		response.RespondError(c, http.StatusBadRequest, "invalid_fingerprint", errors.New("invalid fingerprint"))
		return "", false
	}
	return fp, true
}

func validIndex(index string) bool {
	switch index {
	case "faa-agent", "nrc-agent", "dod-agent":
		return true
	}
	return false
}

type uploadReq struct {
	Filename  string `json:"filename"`
	Text      string `json:"text"`
	Index     string `json:"index"`
	PageCount int    `json:"page_count"`
}

// POST /api/documents
//
// Accepts pre-extracted document text, chunks it near paragraph
// boundaries, and writes the chunks with embeddings through the
// search proxy under the caller's fingerprint.
func (h *DocumentsHandler) Upload(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}

	var req uploadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Index == "" {
		req.Index = "faa-agent"
	}
	if !validIndex(req.Index) {
		response.RespondError(c, http.StatusBadRequest, "invalid_index",
			errors.New("invalid index, must be one of: faa-agent, nrc-agent, dod-agent"))
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_document", errors.New("document text is required"))
		return
	}
	if len(text) > maxUploadChars {
		response.RespondError(c, http.StatusBadRequest, "document_too_large",
			fmt.Errorf("document too large, maximum is %d characters", maxUploadChars))
		return
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "document.pdf"
	}

	ctx := c.Request.Context()
	fileHash := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))

	existing, err := h.proxy.ListDocuments(ctx, req.Index, fp)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "list_documents_failed", err)
		return
	}
	if len(existing) >= maxDocumentsPerUser {
		response.RespondError(c, http.StatusBadRequest, "document_limit_reached",
			fmt.Errorf("document limit reached, maximum %d documents allowed", maxDocumentsPerUser))
		return
	}
	for _, doc := range existing {
		if doc.FileHash == fileHash {
			response.RespondError(c, http.StatusConflict, "duplicate_document", errors.New("document already uploaded"))
			return
		}
	}

	pieces := chunkText(text, uploadChunkChars)
	if len(pieces) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_document", errors.New("no usable text in document"))
		return
	}
	if len(pieces) > maxChunksPerDocument {
		pieces = pieces[:maxChunksPerDocument]
	}

	docID := fmt.Sprintf("%s-%s", fp[:8], uuid.New().String()[:8])
	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	chunks := make([]searchproxy.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, searchproxy.Chunk{
			ID:               fmt.Sprintf("%s-chunk%d", docID, i),
			Title:            filename,
			Content:          piece,
			Source:           "personal",
			DocType:          "user_upload",
			Citation:         fmt.Sprintf("%s (chunk %d/%d)", filename, i+1, len(pieces)),
			OwnerFingerprint: fp,
			UploadedAt:       uploadedAt,
			PageCount:        req.PageCount,
			FileHash:         fileHash,
		})
	}

	result, err := h.proxy.IndexChunks(ctx, req.Index, fp, chunks)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "index_failed", err)
		return
	}

	h.log.Info("Document uploaded", "doc_id", docID, "chunks", result.IndexedCount, "fingerprint", fp)
	response.RespondOK(c, gin.H{
		"id":          docID,
		"title":       filename,
		"page_count":  req.PageCount,
		"chunk_count": result.IndexedCount,
		"status":      "indexed",
	})
}

// GET /api/documents?index=faa-agent
func (h *DocumentsHandler) List(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}
	index := c.DefaultQuery("index", "faa-agent")
	if !validIndex(index) {
		response.RespondError(c, http.StatusBadRequest, "invalid_index", errors.New("invalid index"))
		return
	}

	docs, err := h.proxy.ListDocuments(c.Request.Context(), index, fp)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs, "total_count": len(docs)})
}

// GET /api/documents/:document_id/content?index=faa-agent
func (h *DocumentsHandler) Content(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}
	index := c.DefaultQuery("index", "faa-agent")
	if !validIndex(index) {
		response.RespondError(c, http.StatusBadRequest, "invalid_index", errors.New("invalid index"))
		return
	}

	doc, err := h.proxy.GetDocumentContent(c.Request.Context(), index, fp, c.Param("document_id"))
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			response.RespondError(c, http.StatusNotFound, "document_not_found", errors.New("document not found"))
		case errors.Is(err, pkgerrors.ErrUnauthorized):
			response.RespondError(c, http.StatusForbidden, "not_owner", errors.New("cannot read document owned by another user"))
		default:
			response.RespondError(c, http.StatusBadGateway, "get_document_failed", err)
		}
		return
	}
	response.RespondOK(c, doc)
}

// DELETE /api/documents/:document_id?index=faa-agent
func (h *DocumentsHandler) Delete(c *gin.Context) {
	fp, ok := h.fingerprint(c)
	if !ok {
		return
	}
	index := c.DefaultQuery("index", "faa-agent")
	if !validIndex(index) {
		response.RespondError(c, http.StatusBadRequest, "invalid_index", errors.New("invalid index"))
		return
	}

	deleted, err := h.proxy.DeleteDocument(c.Request.Context(), index, fp, c.Param("document_id"))
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			response.RespondError(c, http.StatusNotFound, "document_not_found", errors.New("document not found"))
		case errors.Is(err, pkgerrors.ErrUnauthorized):
			response.RespondError(c, http.StatusForbidden, "not_owner", errors.New("cannot delete document owned by another user"))
		default:
			response.RespondError(c, http.StatusBadGateway, "delete_failed", err)
		}
		return
	}
	response.RespondOK(c, gin.H{"deleted": true, "chunks_deleted": deleted})
}

// chunkText splits text into pieces of at most size characters,
// preferring paragraph boundaries and falling back to sentence breaks
// for oversized paragraphs.
func chunkText(text string, size int) []string {
	var chunks []string
	var current []string
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentSize = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > size {
			for _, sentence := range strings.Split(strings.ReplaceAll(para, ". ", ".\n"), "\n") {
				sentence = strings.TrimSpace(sentence)
				if sentence == "" {
					continue
				}
				if currentSize+len(sentence) > size {
					flush()
				}
				current = append(current, sentence)
				currentSize += len(sentence) + 1
			}
			continue
		}

		if currentSize+len(para) > size {
			flush()
		}
		current = append(current, para)
		currentSize += len(para) + 2
	}
	flush()

	out := chunks[:0]
	for _, ch := range chunks {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}
