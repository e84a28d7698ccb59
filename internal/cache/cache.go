package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/objectstore"
)

// Document is a cached regulatory document with provenance metadata.
type Document struct {
	Content   string            `json:"content"`
	DocType   string            `json:"doc_type"`
	DocID     string            `json:"doc_id"`
	Title     string            `json:"title"`
	CachedAt  string            `json:"cached_at"`
	HitCount  int               `json:"hit_count"`
	Indexed   bool              `json:"indexed"`
	IndexedAt string            `json:"indexed_at,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

// CFRKey builds the cache key for a CFR section. Subsection references
// like "25.1309(b)(1)" collapse to the base section so all variants of
// the same section share one entry.
func CFRKey(title, part int, section string) string {
	base := section
	if i := strings.Index(base, "("); i >= 0 {
		base = base[:i]
	}
	if i := strings.Index(base, "["); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	return fmt.Sprintf("cfr/%d-%d-%s.json", title, part, base)
}

// DRSKey builds the cache key for an FAA DRS document.
func DRSKey(docType, docNumber string) string {
	normalized := strings.ToUpper(strings.TrimSpace(docNumber))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "/", "-")
	return fmt.Sprintf("drs/%s-%s.json", docType, normalized)
}

// APSKey builds the cache key for an NRC ADAMS document. Accession
// numbers like ML13095A205 are already close to canonical.
func APSKey(accessionNumber string) string {
	return fmt.Sprintf("aps/%s.json", strings.ToUpper(strings.TrimSpace(accessionNumber)))
}

type Cache struct {
	store objectstore.Store
	log   *logger.Logger
}

func New(store objectstore.Store, log *logger.Logger) *Cache {
	return &Cache{store: store, log: log.With("service", "DocumentCache")}
}

// Get returns the cached document for key, or nil on a miss. A hit
// increments the document's hit counter; the write-back is best effort
// and concurrent readers may race on it (last writer wins, the counter
// is advisory telemetry only). Store failures are logged and reported
// as a miss so callers fall through to the origin system.
func (c *Cache) Get(ctx context.Context, key string) *Document {
	rc, err := c.store.Get(ctx, key)
	if err != nil {
		if err == errors.ErrNotFound {
			c.log.Debug("Cache miss", "key", key)
		} else {
			c.log.Error("Cache get error", "key", key, "error", err)
		}
		return nil
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		c.log.Error("Cache read error", "key", key, "error", err)
		return nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.log.Error("Cache decode error", "key", key, "error", err)
		return nil
	}

	doc.HitCount++
	if err := c.write(ctx, key, &doc); err != nil {
		c.log.Warn("Failed to update hit count", "key", key, "error", err)
	}
	c.log.Info("Cache hit", "key", key, "hits", doc.HitCount)
	return &doc
}

// Put stores a freshly fetched document. New entries always start
// unindexed with a zero hit count.
func (c *Cache) Put(ctx context.Context, key, content, docType, docID, title string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	doc := &Document{
		Content:  content,
		DocType:  docType,
		DocID:    docID,
		Title:    title,
		CachedAt: time.Now().UTC().Format(time.RFC3339),
		HitCount: 0,
		Indexed:  false,
		Metadata: metadata,
	}
	if err := c.write(ctx, key, doc); err != nil {
		c.log.Error("Cache put error", "key", key, "error", err)
		return err
	}
	c.log.Info("Cached document", "key", key)
	return nil
}

// MarkIndexed flips the entry's indexed flag. The flag never reverts.
func (c *Cache) MarkIndexed(ctx context.Context, key string) error {
	rc, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("mark indexed %s: %w", key, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("mark indexed %s: %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("mark indexed %s: %w", key, err)
	}
	if doc.Indexed {
		return nil
	}
	doc.Indexed = true
	doc.IndexedAt = time.Now().UTC().Format(time.RFC3339)
	if err := c.write(ctx, key, &doc); err != nil {
		return fmt.Errorf("mark indexed %s: %w", key, err)
	}
	c.log.Info("Marked as indexed", "key", key)
	return nil
}

func (c *Cache) write(ctx context.Context, key string, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, key, bytes.NewReader(raw), "application/json")
}
