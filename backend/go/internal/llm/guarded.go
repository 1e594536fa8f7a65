package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentic_rag/backend/go/pkg/circuitbreaker"
	ragerr "agentic_rag/backend/go/pkg/errors"
)

// Guarded 为回答生成加上超时与熔断，失败统一为 GENERATION_ERROR。
type Guarded struct {
	next    LLM
	name    string
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next LLM, name string, timeout time.Duration, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{next: next, name: name, timeout: timeout, breaker: breaker}
}

func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	run := func() (string, error) { return g.next.Generate(ctx, prompt) }
	var (
		answer string
		err    error
	)
	if g.breaker != nil {
		answer, err = circuitbreaker.Do(g.breaker, run)
	} else {
		answer, err = run()
	}
	if err == nil {
		return answer, nil
	}

	if ragerr.CodeOf(err) != "" {
		return "", err
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "", ragerr.Wrap(err, ragerr.CodeGeneration, fmt.Sprintf("%s LLM unavailable", g.name), ragerr.Field("circuit", "open"))
	case errors.Is(err, context.DeadlineExceeded):
		return "", ragerr.Wrap(err, ragerr.CodeGeneration, fmt.Sprintf("%s LLM timed out", g.name))
	default:
		return "", ragerr.Wrap(err, ragerr.CodeGeneration, fmt.Sprintf("%s LLM failed", g.name))
	}
}

var _ LLM = (*Guarded)(nil)
