package searchproxy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/embeddings"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const (
	// MinFingerprintLength guards against junk identities reaching the
	// filter.
	MinFingerprintLength = 10

	defaultTop = 5
	maxTop     = 20

	// resultContentLimit caps content in search results; full text is
	// fetched through GetDocumentContent.
	resultContentLimit = 1000

	// maxChunkScan bounds the per-owner chunk listing used by list,
	// content, and delete.
	maxChunkScan = 1000
)

// Proxy is the sole gateway to the search index. Every operation
// requires a caller fingerprint and enforces row-level visibility
// before the request reaches the index; callers cannot widen, replace,
// or remove the filter.
type Proxy interface {
	Search(ctx context.Context, index, fingerprint, query string, top int, docType string) ([]SearchResult, error)
	IndexChunks(ctx context.Context, index, fingerprint string, chunks []Chunk) (*IndexResult, error)
	ListDocuments(ctx context.Context, index, fingerprint string) ([]DocumentInfo, error)
	GetDocumentContent(ctx context.Context, index, fingerprint, documentID string) (*DocumentContent, error)
	DeleteDocument(ctx context.Context, index, fingerprint, documentID string) (int, error)
}

// GlobalIndexer is the trusted write path used only by the background
// indexing pipeline. It is deliberately a separate interface so no
// fingerprint-carrying call path can reach it.
type GlobalIndexer interface {
	IndexGlobal(ctx context.Context, index string, chunk Chunk) error
}

type proxy struct {
	log          *logger.Logger
	client       searchClient
	embedder     embeddings.Client
	validIndexes map[string]bool
}

func New(log *logger.Logger, embedder embeddings.Client, validIndexes []string) (Proxy, error) {
	client, err := newAzureSearchClient(log)
	if err != nil {
		return nil, err
	}
	return newProxy(log, client, embedder, validIndexes), nil
}

// NewGlobal returns the trusted indexing surface over the same
// credentials.
func NewGlobal(log *logger.Logger, validIndexes []string) (GlobalIndexer, error) {
	client, err := newAzureSearchClient(log)
	if err != nil {
		return nil, err
	}
	return newProxy(log, client, nil, validIndexes), nil
}

func newProxy(log *logger.Logger, client searchClient, embedder embeddings.Client, validIndexes []string) *proxy {
	valid := make(map[string]bool, len(validIndexes))
	for _, name := range validIndexes {
		if name = strings.TrimSpace(name); name != "" {
			valid[name] = true
		}
	}
	return &proxy{
		log:          log.With("service", "SearchProxy"),
		client:       client,
		embedder:     embedder,
		validIndexes: valid,
	}
}

func (p *proxy) validate(index, fingerprint string) error {
	if !p.validIndexes[index] {
		return fmt.Errorf("%w: invalid index %q", errors.ErrInvalidArgument, index)
	}
	if len(fingerprint) < MinFingerprintLength {
		return fmt.Errorf("%w: fingerprint too short", errors.ErrInvalidArgument)
	}
	return nil
}

// odataQuote escapes a string literal for an OData filter.
func odataQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// visibilityFilter is applied to every search: globally visible rows
// (no owner) plus the caller's own rows. Never derived from caller
// input beyond the validated fingerprint.
func visibilityFilter(fingerprint, docType string) string {
	fp := fmt.Sprintf("(owner_fingerprint eq null or owner_fingerprint eq %s)", odataQuote(fingerprint))
	if docType != "" {
		return fmt.Sprintf("(%s) and (doc_type eq %s)", fp, odataQuote(docType))
	}
	return fp
}

func ownerOnlyFilter(fingerprint string) string {
	return "owner_fingerprint eq " + odataQuote(fingerprint)
}

func (p *proxy) Search(ctx context.Context, index, fingerprint, query string, top int, docType string) ([]SearchResult, error) {
	if err := p.validate(index, fingerprint); err != nil {
		return nil, err
	}
	if top < 1 {
		top = defaultTop
	}
	if top > maxTop {
		top = maxTop
	}

	q := searchQuery{
		Search:    query,
		Top:       top,
		Select:    "id,title,content,source,doc_type,citation,owner_fingerprint",
		QueryType: "simple",
		Filter:    visibilityFilter(fingerprint, docType),
	}

	if p.embedder != nil {
		vector, err := p.embedder.EmbedQuery(ctx, query)
		if err != nil || vector == nil {
			p.log.Warn("Query embedding unavailable; keyword-only search", "error", err)
		} else {
			q.VectorQueries = []vectorQuery{{
				Kind:   "vector",
				Vector: vector,
				Fields: "embedding",
				K:      top,
			}}
		}
	}

	docs, err := p.client.Search(ctx, index, q)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		content := strutil.Truncate(d.Content, resultContentLimit)
		results = append(results, SearchResult{
			ID:               d.ID,
			Title:            d.Title,
			Content:          content,
			Source:           d.Source,
			DocType:          d.DocType,
			Citation:         d.Citation,
			OwnerFingerprint: d.OwnerFingerprint,
			Score:            d.Score,
		})
	}
	p.log.Info("Search complete", "index", index, "fingerprint", fingerprint, "query", query, "results", len(results))
	return results, nil
}

// IndexChunks writes a batch of personal chunks. Every chunk must be
// owned by the request fingerprint; ownerless chunks are rejected so
// callers cannot write into the globally visible corpus. Any violation
// rejects the whole batch before anything is written.
func (p *proxy) IndexChunks(ctx context.Context, index, fingerprint string, chunks []Chunk) (*IndexResult, error) {
	if err := p.validate(index, fingerprint); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.OwnerFingerprint == "" {
			return nil, fmt.Errorf("%w: chunk %s has no owner fingerprint", errors.ErrUnauthorized, c.ID)
		}
		if c.OwnerFingerprint != fingerprint {
			return nil, fmt.Errorf("%w: chunk fingerprint mismatch", errors.ErrUnauthorized)
		}
	}

	actions := make([]indexAction, 0, len(chunks))
	for i := range chunks {
		actions = append(actions, indexAction{Action: "upload", Chunk: &chunks[i]})
	}
	items, err := p.client.IndexBatch(ctx, index, actions)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{}
	for _, item := range items {
		if item.Status || item.StatusCode == 200 || item.StatusCode == 201 {
			result.IndexedCount++
			continue
		}
		result.FailedCount++
		if item.ErrorMessage != "" {
			result.Errors = append(result.Errors, item.ErrorMessage)
		}
	}
	p.log.Info("Indexed chunks", "index", index, "fingerprint", fingerprint,
		"indexed", result.IndexedCount, "failed", result.FailedCount)
	return result, nil
}

// IndexGlobal uploads one ownerless chunk. Only the background indexer
// holds this surface.
func (p *proxy) IndexGlobal(ctx context.Context, index string, chunk Chunk) error {
	if !p.validIndexes[index] {
		return fmt.Errorf("%w: invalid index %q", errors.ErrInvalidArgument, index)
	}
	if chunk.OwnerFingerprint != "" {
		return fmt.Errorf("%w: global chunks must not carry an owner", errors.ErrInvalidArgument)
	}
	items, err := p.client.IndexBatch(ctx, index, []indexAction{{Action: "upload", Chunk: &chunk}})
	if err != nil {
		return err
	}
	for _, item := range items {
		if !item.Status && item.StatusCode != 200 && item.StatusCode != 201 {
			return fmt.Errorf("index upload failed for %s: %s", item.Key, item.ErrorMessage)
		}
	}
	return nil
}

func (p *proxy) ownedChunks(ctx context.Context, index, fingerprint, selectFields, orderBy string) ([]rawDoc, error) {
	return p.client.Search(ctx, index, searchQuery{
		Search:  "*",
		Top:     maxChunkScan,
		Select:  selectFields,
		Filter:  ownerOnlyFilter(fingerprint),
		OrderBy: orderBy,
	})
}

// baseID strips the "-chunkN" suffix.
func baseID(id string) string {
	if i := strings.LastIndex(id, "-chunk"); i >= 0 {
		if _, err := strconv.Atoi(id[i+len("-chunk"):]); err == nil {
			return id[:i]
		}
	}
	return id
}

func chunkNum(id string) int {
	if i := strings.LastIndex(id, "-chunk"); i >= 0 {
		if n, err := strconv.Atoi(id[i+len("-chunk"):]); err == nil {
			return n
		}
	}
	return 0
}

func (p *proxy) ListDocuments(ctx context.Context, index, fingerprint string) ([]DocumentInfo, error) {
	if err := p.validate(index, fingerprint); err != nil {
		return nil, err
	}
	docs, err := p.ownedChunks(ctx, index, fingerprint,
		"id,title,uploaded_at,page_count,file_hash,owner_fingerprint", "uploaded_at desc")
	if err != nil {
		return nil, err
	}

	byBase := map[string]*DocumentInfo{}
	var order []string
	for _, d := range docs {
		base := baseID(d.ID)
		info, ok := byBase[base]
		if !ok {
			info = &DocumentInfo{
				ID:         base,
				Title:      d.Title,
				Filename:   d.Title,
				UploadedAt: d.UploadedAt,
				PageCount:  d.PageCount,
				FileHash:   d.FileHash,
			}
			byBase[base] = info
			order = append(order, base)
		}
		info.ChunkCount++
	}

	out := make([]DocumentInfo, 0, len(order))
	for _, base := range order {
		out = append(out, *byBase[base])
	}
	return out, nil
}

func matchesDocument(chunkID, documentID string) bool {
	return chunkID == documentID || strings.HasPrefix(chunkID, documentID+"-chunk")
}

func (p *proxy) GetDocumentContent(ctx context.Context, index, fingerprint, documentID string) (*DocumentContent, error) {
	if err := p.validate(index, fingerprint); err != nil {
		return nil, err
	}
	docs, err := p.ownedChunks(ctx, index, fingerprint,
		"id,title,content,uploaded_at,page_count,owner_fingerprint", "id asc")
	if err != nil {
		return nil, err
	}

	var chunks []rawDoc
	for _, d := range docs {
		if !matchesDocument(d.ID, documentID) {
			continue
		}
		// One foreign chunk fails the whole fetch, never a partial
		// document.
		if d.OwnerFingerprint != fingerprint {
			return nil, fmt.Errorf("%w: document owned by another user", errors.ErrUnauthorized)
		}
		chunks = append(chunks, d)
	}
	if len(chunks) == 0 {
		return nil, errors.ErrNotFound
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunkNum(chunks[i].ID) < chunkNum(chunks[j].ID)
	})

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	content := strings.Join(parts, "\n\n")

	p.log.Info("Reassembled document", "document_id", documentID,
		"chunks", len(chunks), "chars", len(content))
	return &DocumentContent{
		ID:         documentID,
		Title:      chunks[0].Title,
		Content:    content,
		PageCount:  chunks[0].PageCount,
		ChunkCount: len(chunks),
		UploadedAt: chunks[0].UploadedAt,
		TotalChars: len(content),
	}, nil
}

func (p *proxy) DeleteDocument(ctx context.Context, index, fingerprint, documentID string) (int, error) {
	if err := p.validate(index, fingerprint); err != nil {
		return 0, err
	}
	docs, err := p.ownedChunks(ctx, index, fingerprint, "id,owner_fingerprint", "")
	if err != nil {
		return 0, err
	}

	var actions []indexAction
	for _, d := range docs {
		if !matchesDocument(d.ID, documentID) {
			continue
		}
		if d.OwnerFingerprint != fingerprint {
			return 0, fmt.Errorf("%w: document owned by another user", errors.ErrUnauthorized)
		}
		actions = append(actions, indexAction{Action: "delete", ID: d.ID})
	}
	if len(actions) == 0 {
		return 0, errors.ErrNotFound
	}

	if _, err := p.client.IndexBatch(ctx, index, actions); err != nil {
		return 0, err
	}
	p.log.Info("Deleted document", "document_id", documentID, "chunks", len(actions), "fingerprint", fingerprint)
	return len(actions), nil
}

// NowUTC is the timestamp format for uploaded_at fields.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
