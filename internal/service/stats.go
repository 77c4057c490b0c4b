package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edirooss/slot-server/internal/server"
	"go.uber.org/zap"
)

// StatsSource produces a live stats reading.
type StatsSource interface {
	Stats() server.Stats
}

type StatsOptions struct {
	// TTL controls how long the in-memory snapshot is served; default 250ms.
	TTL time.Duration
}

func (o *StatsOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 250 * time.Millisecond
	}
}

// StatsResult lets the handler set headers/telemetry.
type StatsResult struct {
	Data        server.Stats
	CacheHit    bool
	GeneratedAt time.Time // snapshot timestamp
}

// StatsService serves a short-lived snapshot of server stats so that
// dashboards polling the admin API do not hammer the slot pool lock.
// Concurrent refreshes are coalesced.
type StatsService struct {
	log *zap.Logger
	src StatsSource

	mu      sync.RWMutex
	cache   *server.Stats
	expires time.Time
	genAt   time.Time

	opts StatsOptions
	now  func() time.Time

	sg singleflight.Group
}

// NewStatsService wires the source and cache policy.
func NewStatsService(log *zap.Logger, src StatsSource, opts StatsOptions) *StatsService {
	opts.setDefaults()
	return &StatsService{
		log:  log.Named("stats_service"),
		src:  src,
		opts: opts,
		now:  time.Now,
	}
}

// Get returns the cached snapshot or refreshes it when expired.
func (s *StatsService) Get(ctx context.Context) (StatsResult, error) {
	if res, ok := s.fresh(); ok {
		return res, nil
	}

	v, err, _ := s.sg.Do("stats-refresh", func() (any, error) {
		// Double-check freshness after we won the flight
		if res, ok := s.fresh(); ok {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := s.now()
		data := s.src.Stats()

		s.mu.Lock()
		s.cache = &data
		s.expires = start.Add(s.opts.TTL)
		s.genAt = start
		s.mu.Unlock()

		s.log.Debug("stats refreshed", zap.Int("in_use", data.InUse))
		return StatsResult{Data: data, CacheHit: false, GeneratedAt: start}, nil
	})
	if err != nil {
		return StatsResult{}, err
	}
	return v.(StatsResult), nil
}

// Invalidate drops the snapshot so the next Get refreshes.
func (s *StatsService) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.expires = time.Time{}
	s.genAt = time.Time{}
	s.mu.Unlock()
}

func (s *StatsService) fresh() (StatsResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache != nil && s.now().Before(s.expires) {
		return StatsResult{Data: *s.cache, CacheHit: true, GeneratedAt: s.genAt}, true
	}
	return StatsResult{}, false
}
