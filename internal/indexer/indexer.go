package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/embeddings"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/searchproxy"
)

// indexContentLimit is the search index's per-chunk content cap.
const indexContentLimit = 32000

// Request describes one document to embed and upload as a globally
// visible chunk.
type Request struct {
	Content   string
	DocType   string
	DocID     string
	Title     string
	SourceURL string
	// CacheKey, when set, is marked indexed after a successful upload.
	CacheKey string
	// IndexName selects the target index; empty means the default.
	IndexName string
}

// ChunkID derives the stable index id for a document.
func ChunkID(docType, docID string) string {
	sum := sha256.Sum256([]byte(docType + ":" + docID))
	return hex.EncodeToString(sum[:])[:16]
}

type Indexer struct {
	log          *logger.Logger
	embedder     embeddings.Client
	global       searchproxy.GlobalIndexer
	docCache     *cache.Cache
	defaultIndex string
}

func New(log *logger.Logger, embedder embeddings.Client, global searchproxy.GlobalIndexer, docCache *cache.Cache, defaultIndex string) *Indexer {
	return &Indexer{
		log:          log.With("service", "Indexer"),
		embedder:     embedder,
		global:       global,
		docCache:     docCache,
		defaultIndex: defaultIndex,
	}
}

// IndexDocument embeds the content, uploads one ownerless chunk, and
// flips the cache entry's indexed flag. A failed embedding is not
// fatal; the chunk is indexed for keyword search only.
func (ix *Indexer) IndexDocument(ctx context.Context, req Request) error {
	if ix.global == nil {
		return fmt.Errorf("index upload for %s/%s: search indexing not configured", req.DocType, req.DocID)
	}
	index := req.IndexName
	if index == "" {
		index = ix.defaultIndex
	}
	ix.log.Info("Indexing document", "doc_type", req.DocType, "doc_id", req.DocID, "index", index)

	var vector []float32
	if ix.embedder != nil {
		vectors, err := ix.embedder.Embed(ctx, []string{req.Content}, "document")
		if err != nil || len(vectors) == 0 || vectors[0] == nil {
			ix.log.Warn("Could not generate embedding", "doc_id", req.DocID, "error", err)
		} else {
			vector = vectors[0]
		}
	}

	content := strutil.Truncate(req.Content, indexContentLimit)

	chunk := searchproxy.Chunk{
		ID:        ChunkID(req.DocType, req.DocID),
		Title:     req.Title,
		Content:   content,
		Source:    req.SourceURL,
		DocType:   req.DocType,
		Citation:  req.DocID,
		Embedding: vector,
	}
	if err := ix.global.IndexGlobal(ctx, index, chunk); err != nil {
		return fmt.Errorf("index upload for %s/%s: %w", req.DocType, req.DocID, err)
	}

	if req.CacheKey != "" && ix.docCache != nil {
		if err := ix.docCache.MarkIndexed(ctx, req.CacheKey); err != nil {
			ix.log.Warn("Indexed but could not mark cache entry", "key", req.CacheKey, "error", err)
		}
	}
	ix.log.Info("Successfully indexed", "doc_type", req.DocType, "doc_id", req.DocID)
	return nil
}
