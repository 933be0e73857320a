package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultRateLimit is the command rate the bridge handles without dropping requests.
const DefaultRateLimit = 10.0

// Limited throttles an inner transport with a token bucket.
type Limited struct {
	next    Transport
	limiter *rate.Limiter
}

// NewLimited wraps next with a limiter of rps requests per second (burst = rps).
// A zero rps uses DefaultRateLimit; a negative rps disables limiting.
func NewLimited(next Transport, rps float64) *Limited {
	if rps == 0 {
		rps = DefaultRateLimit
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &Limited{next: next, limiter: limiter}
}

// Do waits for a token and forwards the request.
func (l *Limited) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, Wrap(req, err)
	}
	return l.next.Do(ctx, req)
}
