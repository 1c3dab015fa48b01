package monitor

import (
	"context"
	"sync"
)

type memoKey struct{}

type memoResult struct {
	value any
	err   error
}

// tickMemo caches fetch results for the duration of one tick.
type tickMemo struct {
	mu      sync.Mutex
	results map[string]memoResult
}

func withTickMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoKey{}, &tickMemo{results: make(map[string]memoResult)})
}

// memoize returns the cached result for key, calling fetch on the first use
// within the tick. Errors are cached as well, so a failing pair is queried once.
// Without a memo in ctx fetch is always called.
func memoize[V any](ctx context.Context, key string, fetch func() (V, error)) (V, error) {
	m, ok := ctx.Value(memoKey{}).(*tickMemo)
	if !ok {
		return fetch()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.results[key]; ok {
		v, _ := r.value.(V)
		return v, r.err
	}
	v, err := fetch()
	m.results[key] = memoResult{value: v, err: err}
	return v, err
}
