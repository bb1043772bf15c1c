package chain

import (
	"context"

	"github.com/phenomenon0/bet-copilot/core"
)

// ProviderFunc adapts a function to Provider. A nil Ready means always
// available.
type ProviderFunc[In, T any] struct {
	ID    string
	Fn    func(ctx context.Context, in In) core.Result[T]
	Ready func() bool
}

func (p ProviderFunc[In, T]) Name() string { return p.ID }

func (p ProviderFunc[In, T]) Available() bool {
	return p.Ready == nil || p.Ready()
}

func (p ProviderFunc[In, T]) Call(ctx context.Context, in In) core.Result[T] {
	return p.Fn(ctx, in)
}

// FallbackFunc adapts a function to Fallback.
type FallbackFunc[In, T any] struct {
	ID string
	Fn func(ctx context.Context, in In) T
}

func (f FallbackFunc[In, T]) Name() string { return f.ID }

func (f FallbackFunc[In, T]) Estimate(ctx context.Context, in In) T {
	return f.Fn(ctx, in)
}
