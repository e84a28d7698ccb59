package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/pkg/strutil"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

// Usage keys are partitioned by UTC date so quotas reset at midnight.
// Counters live 48h: long enough for the admin view to show yesterday,
// short enough that redis cleans up after itself.
const usageTTL = 48 * time.Hour

// UsageRecord is one fingerprint's usage for one day, as shown in the
// admin view.
type UsageRecord struct {
	Date           string `json:"date"`
	Fingerprint    string `json:"fingerprint"`
	RequestCount   int    `json:"request_count"`
	FirstRequestAt string `json:"first_request_at,omitempty"`
	LastRequestAt  string `json:"last_request_at,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
}

type UsageTracker interface {
	// CheckQuota returns today's used and remaining counts for
	// fingerprint. A spent quota is errors.ErrQuotaExceeded.
	CheckQuota(ctx context.Context, fingerprint string) (int, int, error)
	// Increment counts one completed request and returns the new total.
	Increment(ctx context.Context, fingerprint, userAgent, ipAddress string) (int, error)
	ListAll(ctx context.Context) ([]UsageRecord, error)
	Limit() int
	Close() error
}

type usageTracker struct {
	log   *logger.Logger
	rdb   *goredis.Client
	geo   *Geolocator
	limit int
}

func NewUsageTracker(log *logger.Logger, geo *Geolocator) (UsageTracker, error) {
	addr := envutil.Str("REDIS_ADDR", "localhost:6379")
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.Str("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &usageTracker{
		log:   log.With("service", "UsageTracker"),
		rdb:   rdb,
		geo:   geo,
		limit: envutil.Int("DAILY_REQUEST_LIMIT", 15),
	}, nil
}

func (t *usageTracker) Limit() int { return t.limit }

func (t *usageTracker) Close() error { return t.rdb.Close() }

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func usageKey(date, fingerprint string) string {
	return fmt.Sprintf("usage:%s:%s", date, fingerprint)
}

func usageMetaKey(date, fingerprint string) string {
	return fmt.Sprintf("usagemeta:%s:%s", date, fingerprint)
}

func (t *usageTracker) CheckQuota(ctx context.Context, fingerprint string) (int, int, error) {
	used, err := t.rdb.Get(ctx, usageKey(today(), fingerprint)).Int()
	if err != nil && err != goredis.Nil {
		return 0, 0, fmt.Errorf("read usage counter: %w", err)
	}
	remaining := t.limit - used
	if remaining < 0 {
		remaining = 0
	}
	if used >= t.limit {
		return used, remaining, pkgerrors.ErrQuotaExceeded
	}
	return used, remaining, nil
}

func (t *usageTracker) Increment(ctx context.Context, fingerprint, userAgent, ipAddress string) (int, error) {
	date := today()
	key := usageKey(date, fingerprint)

	count, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment usage counter: %w", err)
	}
	t.rdb.Expire(ctx, key, usageTTL)

	now := time.Now().UTC().Format(time.RFC3339)
	meta := map[string]any{"last_request_at": now}
	if count == 1 {
		meta["first_request_at"] = now
		meta["user_agent"] = strutil.Truncate(userAgent, 500)
		if ipAddress != "" {
			meta["ip_address"] = StripPort(ipAddress)
			if loc := t.geo.Lookup(ctx, ipAddress); loc.Country != "" {
				meta["country"] = loc.Country
				meta["city"] = loc.City
			}
		}
	}
	metaKey := usageMetaKey(date, fingerprint)
	if err := t.rdb.HSet(ctx, metaKey, meta).Err(); err != nil {
		t.log.Warn("Failed to record usage metadata", "error", err)
	}
	t.rdb.Expire(ctx, metaKey, usageTTL)

	t.log.Info("Fingerprint daily usage", "fingerprint", fingerprint, "count", count)
	return int(count), nil
}

func (t *usageTracker) ListAll(ctx context.Context) ([]UsageRecord, error) {
	var records []UsageRecord

	iter := t.rdb.Scan(ctx, 0, "usage:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// usage:{YYYY-MM-DD}:{fingerprint}
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}
		date, fingerprint := parts[1], parts[2]

		count, err := t.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(count)

		rec := UsageRecord{Date: date, Fingerprint: fingerprint, RequestCount: n}
		if meta, err := t.rdb.HGetAll(ctx, usageMetaKey(date, fingerprint)).Result(); err == nil {
			rec.FirstRequestAt = meta["first_request_at"]
			rec.LastRequestAt = meta["last_request_at"]
			rec.UserAgent = meta["user_agent"]
			rec.IPAddress = meta["ip_address"]
			rec.Country = meta["country"]
			rec.City = meta["city"]
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan usage keys: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].LastRequestAt > records[j].LastRequestAt
	})
	return records, nil
}
