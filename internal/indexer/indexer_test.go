package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/platform/embeddings"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/objectstore"
	"github.com/regscout/regscout-backend/internal/searchproxy"
)

type fakeGlobalIndexer struct {
	mu     sync.Mutex
	chunks []searchproxy.Chunk
	err    error
}

func (f *fakeGlobalIndexer) IndexGlobal(ctx context.Context, index string, chunk searchproxy.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, chunk)
	return nil
}

func TestChunkID(t *testing.T) {
	id := ChunkID("cfr", "14-25-1309")
	if len(id) != 16 {
		t.Fatalf("chunk id length = %d, want 16", len(id))
	}
	if id != ChunkID("cfr", "14-25-1309") {
		t.Fatal("chunk id not stable")
	}
	if id == ChunkID("drs", "14-25-1309") {
		t.Fatal("doc type not part of chunk id")
	}
}

func TestIndexDocument(t *testing.T) {
	store := objectstore.NewMemory()
	docCache := cache.New(store, logger.NewNop())
	ctx := context.Background()

	key := cache.CFRKey(14, 25, "25.1309")
	if err := docCache.Put(ctx, key, "section text", "cfr", "14-25-1309", "Equipment", nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	global := &fakeGlobalIndexer{}
	ix := New(logger.NewNop(), &embeddings.StaticClient{Vector: []float32{0.1, 0.2}}, global, docCache, "faa-agent")

	err := ix.IndexDocument(ctx, Request{
		Content:   strings.Repeat("x", indexContentLimit+500),
		DocType:   "cfr",
		DocID:     "14-25-1309",
		Title:     "Equipment",
		SourceURL: "https://www.ecfr.gov/current/title-14/part-25/section-25.1309",
		CacheKey:  key,
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	if len(global.chunks) != 1 {
		t.Fatalf("uploaded %d chunks, want 1", len(global.chunks))
	}
	chunk := global.chunks[0]
	if chunk.OwnerFingerprint != "" {
		t.Fatal("background chunk must be ownerless")
	}
	if len(chunk.Content) != indexContentLimit {
		t.Fatalf("content length = %d, want %d", len(chunk.Content), indexContentLimit)
	}
	if chunk.Citation != "14-25-1309" {
		t.Fatalf("citation = %q", chunk.Citation)
	}
	if len(chunk.Embedding) != 2 {
		t.Fatalf("embedding = %v", chunk.Embedding)
	}

	doc := docCache.Get(ctx, key)
	if doc == nil || !doc.Indexed {
		t.Fatalf("cache entry not marked indexed: %+v", doc)
	}
}

func TestIndexDocumentWithoutEmbedder(t *testing.T) {
	global := &fakeGlobalIndexer{}
	ix := New(logger.NewNop(), nil, global, nil, "faa-agent")

	if err := ix.IndexDocument(context.Background(), Request{Content: "text", DocType: "cfr", DocID: "x"}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(global.chunks) != 1 || global.chunks[0].Embedding != nil {
		t.Fatalf("keyword-only upload expected, got %+v", global.chunks)
	}
}

func TestIndexDocumentWithoutGlobalIndexer(t *testing.T) {
	ix := New(logger.NewNop(), nil, nil, nil, "faa-agent")

	err := ix.IndexDocument(context.Background(), Request{Content: "text", DocType: "cfr", DocID: "14-25-1309"})
	if err == nil {
		t.Fatal("expected error when search indexing is not configured")
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("error = %v", err)
	}
}

type countingIndexer struct {
	calls atomic.Int32
	err   error
	slow  time.Duration
}

func (c *countingIndexer) IndexDocument(ctx context.Context, req Request) error {
	c.calls.Add(1)
	if c.slow > 0 {
		time.Sleep(c.slow)
	}
	return c.err
}

func TestSchedulerRetriesThenDeadLetters(t *testing.T) {
	ci := &countingIndexer{err: errors.New("index unavailable")}
	s := NewScheduler(logger.NewNop(), ci, 1, 4)
	s.baseDelay = time.Millisecond

	if !s.Schedule(Request{DocType: "cfr", DocID: "14-25-1309"}) {
		t.Fatal("schedule rejected")
	}
	s.Close()

	if got := ci.calls.Load(); got != maxAttempts {
		t.Fatalf("indexer called %d times, want %d", got, maxAttempts)
	}
}

type panickingIndexer struct {
	calls atomic.Int32
}

func (p *panickingIndexer) IndexDocument(ctx context.Context, req Request) error {
	p.calls.Add(1)
	panic("index client gone")
}

func TestSchedulerSurvivesPanickingTask(t *testing.T) {
	pi := &panickingIndexer{}
	s := NewScheduler(logger.NewNop(), pi, 1, 4)
	s.baseDelay = time.Millisecond

	if !s.Schedule(Request{DocType: "cfr", DocID: "a"}) {
		t.Fatal("first schedule rejected")
	}
	s.Close()

	// Every attempt panicked, the worker recovered each time and the
	// task was dead-lettered instead of crashing the pool.
	if got := pi.calls.Load(); got != maxAttempts {
		t.Fatalf("indexer called %d times, want %d", got, maxAttempts)
	}
}

func TestSchedulerCoalescesDuplicates(t *testing.T) {
	ci := &countingIndexer{slow: 20 * time.Millisecond}
	s := NewScheduler(logger.NewNop(), ci, 2, 16)

	req := Request{DocType: "cfr", DocID: "14-25-1309", CacheKey: "cfr/14-25-25.1309.json"}
	accepted := 0
	for i := 0; i < 10; i++ {
		if s.Schedule(req) {
			accepted++
		}
	}
	s.Close()

	if accepted != 1 {
		t.Fatalf("accepted %d duplicates, want 1", accepted)
	}
	if got := ci.calls.Load(); got != 1 {
		t.Fatalf("indexer called %d times, want 1", got)
	}
}

func TestSchedulerDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	ci := &blockingIndexer{release: block, started: make(chan struct{}, 1)}
	s := NewScheduler(logger.NewNop(), ci, 1, 1)

	// First request occupies the worker, second fills the queue.
	if !s.Schedule(Request{DocType: "cfr", DocID: "a"}) {
		t.Fatal("first schedule rejected")
	}
	<-ci.started
	if !s.Schedule(Request{DocType: "cfr", DocID: "b"}) {
		t.Fatal("second schedule rejected")
	}
	if s.Schedule(Request{DocType: "cfr", DocID: "c"}) {
		t.Fatal("expected queue-full drop")
	}

	close(block)
	s.Close()
}

type blockingIndexer struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingIndexer) IndexDocument(ctx context.Context, req Request) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return nil
}
