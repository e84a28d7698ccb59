package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/regscout/regscout-backend/internal/pkg/httpx"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
	maxAttempts      = 3
	baseRetryDelay   = 2 * time.Second
)

type documentIndexer interface {
	IndexDocument(ctx context.Context, req Request) error
}

// Scheduler runs indexing requests on a bounded worker pool, detached
// from request lifetimes. Indexing is advisory: a full queue drops the
// request with a warning rather than blocking the caller, and a task
// that exhausts its retries is abandoned with a dead-letter log line.
type Scheduler struct {
	log       *logger.Logger
	indexer   documentIndexer
	queue     chan Request
	baseDelay time.Duration

	mu       sync.Mutex
	inflight map[string]bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewScheduler(log *logger.Logger, ix documentIndexer, workers, queueSize int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Scheduler{
		log:       log.With("service", "IndexScheduler"),
		indexer:   ix,
		queue:     make(chan Request, queueSize),
		baseDelay: baseRetryDelay,
		inflight:  map[string]bool{},
	}

	// Workers use their own root context so indexing survives the
	// requests that scheduled it.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		s.group.Go(func() error {
			s.worker(ctx)
			return nil
		})
	}
	return s
}

func dedupeKey(req Request) string {
	if req.CacheKey != "" {
		return req.CacheKey
	}
	return req.DocType + ":" + req.DocID
}

// Schedule enqueues req and returns whether it was accepted. Requests
// already queued or running for the same document are coalesced.
func (s *Scheduler) Schedule(req Request) bool {
	key := dedupeKey(req)
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		s.log.Debug("Indexing already pending", "key", key)
		return false
	}
	s.inflight[key] = true
	s.mu.Unlock()

	select {
	case s.queue <- req:
		s.log.Info("Scheduled background indexing", "doc_type", req.DocType, "doc_id", req.DocID, "index", req.IndexName)
		return true
	default:
		s.clearInflight(key)
		s.log.Warn("Indexing queue full; dropping request", "doc_type", req.DocType, "doc_id", req.DocID)
		return false
	}
}

func (s *Scheduler) clearInflight(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-s.queue:
			if !ok {
				return
			}
			s.run(ctx, req)
			s.clearInflight(dedupeKey(req))
		}
	}
}

func (s *Scheduler) run(ctx context.Context, req Request) {
	delay := s.baseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		lastErr = s.attempt(ctx, req)
		if lastErr == nil {
			return
		}
		if attempt < maxAttempts {
			s.log.Warn("Indexing attempt failed; retrying",
				"doc_id", req.DocID,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"delay", delay.String(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(httpx.JitterSleep(delay)):
			}
			delay *= 2
		}
	}
	s.log.Error("Dead-letter: indexing abandoned",
		"doc_type", req.DocType,
		"doc_id", req.DocID,
		"index", req.IndexName,
		"attempts", maxAttempts,
		"error", lastErr,
	)
}

// attempt runs one indexing call, converting a panic into an error so
// a bad task cannot take the worker pool down with it.
func (s *Scheduler) attempt(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexing panic: %v", r)
		}
	}()
	return s.indexer.IndexDocument(ctx, req)
}

// Close stops accepting work and waits for in-flight tasks.
func (s *Scheduler) Close() {
	close(s.queue)
	_ = s.group.Wait()
	s.cancel()
}
