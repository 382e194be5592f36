package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const (
	DefaultDedupeTTL = 5 * time.Minute
	dedupeKeyPrefix  = "intake:seen:"
	memoryDedupeCap  = 10000
)

// Deduper remembers provider message ids for a while.
type Deduper interface {
	// MarkSeen records id and reports whether it was new.
	MarkSeen(ctx context.Context, id string) (bool, error)
}

// RedisDeduper keeps seen ids as expiring Redis keys (SET NX EX).
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("intake: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("intake: dedupe set: %w", err)
	}
	return ok, nil
}

// MemoryDeduper is a bounded TTL set. When full, expired entries are swept
// and, failing that, the oldest entry is evicted.
type MemoryDeduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	cap   int
	seen  map[string]time.Time
	order []seenEntry
	now   func() time.Time
}

type seenEntry struct {
	id  string
	exp time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{ttl: ttl, cap: memoryDedupeCap, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) MarkSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	if len(d.seen) >= d.cap {
		d.sweepLocked(now)
	}
	for len(d.seen) >= d.cap && len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		d.forgetLocked(oldest)
	}
	exp := now.Add(d.ttl)
	d.seen[id] = exp
	d.order = append(d.order, seenEntry{id: id, exp: exp})
	return true, nil
}

func (d *MemoryDeduper) sweepLocked(now time.Time) {
	kept := d.order[:0]
	for _, e := range d.order {
		if !now.Before(e.exp) {
			d.forgetLocked(e)
			continue
		}
		kept = append(kept, e)
	}
	d.order = kept
}

// forgetLocked drops e unless id was marked again since.
func (d *MemoryDeduper) forgetLocked(e seenEntry) {
	if exp, ok := d.seen[e.id]; ok && exp.Equal(e.exp) {
		delete(d.seen, e.id)
	}
}

// FallbackDeduper prefers Redis and falls back to memory when Redis errors.
type FallbackDeduper struct {
	primary  Deduper
	fallback *MemoryDeduper
	logger   *logging.Logger
}

// NewFallbackDeduper returns a memory-only deduper when primary is nil.
func NewFallbackDeduper(primary Deduper, ttl time.Duration, logger *logging.Logger) *FallbackDeduper {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackDeduper{primary: primary, fallback: NewMemoryDeduper(ttl), logger: logger}
}

func (d *FallbackDeduper) MarkSeen(ctx context.Context, id string) (bool, error) {
	if d.primary != nil {
		fresh, err := d.primary.MarkSeen(ctx, id)
		if err == nil {
			return fresh, nil
		}
		d.logger.Warn("dedupe store unavailable, using memory", "error", err)
	}
	return d.fallback.MarkSeen(ctx, id)
}
