package oracle

import (
	"context"

	"github.com/sheikhrachel/go-firesim/env"
)

type limited struct {
	o   Oracle
	sem chan struct{}
}

// Limit bounds the number of in-flight calls to o. n <= 0 returns o unchanged.
func Limit(o Oracle, n int) Oracle {
	if n <= 0 {
		return o
	}
	return &limited{o: o, sem: make(chan struct{}, n)}
}

func (l *limited) Probability(ctx context.Context, fv env.FeatureVector) (float64, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.o.Probability(ctx, fv)
}
