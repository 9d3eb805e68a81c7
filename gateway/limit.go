package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limitConfig is a {periodMs, times} quota: times requests allowed per
// period, replenishing continuously (a token bucket with that average
// rate and a burst of times).
type limitConfig struct {
	period time.Duration
	times  int
}

func newLimitConfig(periodMs, times int) *limitConfig {
	return &limitConfig{period: time.Duration(periodMs) * time.Millisecond, times: times}
}

// reservation wraps a rate.Reservation so a handler that reports
// ErrNotConsumed can give its token back.
type reservation struct {
	r  *rate.Reservation
	at time.Time
}

func (res *reservation) cancel() {
	res.r.CancelAt(res.at)
}

// limiterStore holds one *rate.Limiter per (socket, event) pair, created
// lazily on first use of a given quota.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[socketEventKey]*rate.Limiter
}

// socketEventKey keys the limiter map. Sockets are compared by pointer
// identity, which is exactly what the per-socket quota requires.
type socketEventKey struct {
	socket *Socket
	event  string
}

func newLimiterStore() *limiterStore {
	return &limiterStore{limiters: make(map[socketEventKey]*rate.Limiter)}
}

// reserve attempts to consume one token for (s, event) under cfg. If the
// token isn't available right now, the attempt is rejected and no
// reservation is returned.
func (ls *limiterStore) reserve(s *Socket, event string, cfg limitConfig) (*reservation, bool) {
	key := socketEventKey{socket: s, event: event}

	ls.mu.Lock()
	lim, ok := ls.limiters[key]
	if !ok {
		interval := cfg.period / time.Duration(cfg.times)
		lim = rate.NewLimiter(rate.Every(interval), cfg.times)
		ls.limiters[key] = lim
	}
	ls.mu.Unlock()

	now := time.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}
	return &reservation{r: r, at: now}, true
}

// forget drops every limiter associated with s, called when a socket
// closes so the store does not grow unbounded.
func (ls *limiterStore) forget(s *Socket) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for key := range ls.limiters {
		if key.socket == s {
			delete(ls.limiters, key)
		}
	}
}
