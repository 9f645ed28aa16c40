package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedGenerator struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// WithRateLimit caps outgoing generations at rps requests per second with the
// given burst. Callers block until a token is available or ctx ends.
func WithRateLimit(next TextGenerator, rps float64, burst int) TextGenerator {
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimitedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, req)
}

func (r *rateLimitedGenerator) GetModel() string {
	return r.next.GetModel()
}
