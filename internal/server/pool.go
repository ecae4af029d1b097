package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/go-g2pfold/internal/phonemizer"
)

// poolKey identifies adapters that produce identical output.
type poolKey struct {
	language           string
	keepWordBoundaries bool
	useFolding         bool
}

func keyFor(opts phonemizer.Options) poolKey {
	return poolKey{
		language:           opts.Language,
		keepWordBoundaries: opts.KeepWordBoundaries,
		useFolding:         opts.UseFolding,
	}
}

// entry is one cached adapter. ready is closed once construction has
// finished; lock serializes calls since adapters are single-threaded.
type entry struct {
	ready chan struct{}
	p     Phonemizer
	err   error
	lock  chan struct{}
}

var errEngineStopped = errors.New("engine stopped")

// phonemize runs lines once e is free. It fails with errEngineStopped when
// the engine was already dead on arrival or died during the call, since
// the "" lines it would return then say nothing about the input.
func (e *entry) phonemize(ctx context.Context, lines []string) ([]string, error) {
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.lock }()

	if err := e.p.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errEngineStopped, err)
	}
	out := e.p.Phonemize(ctx, lines)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.p.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errEngineStopped, err)
	}
	return out, nil
}

type pool struct {
	factory Factory

	mu      sync.Mutex
	entries map[poolKey]*entry
	closed  bool
}

var errPoolClosed = errors.New("server: adapter pool closed")

func newPool(factory Factory) *pool {
	return &pool{factory: factory, entries: make(map[poolKey]*entry)}
}

// get returns the adapter for opts, building it on first use. Failed
// constructions are not cached.
func (p *pool) get(ctx context.Context, opts phonemizer.Options) (*entry, error) {
	k := keyFor(opts)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPoolClosed
	}
	e, ok := p.entries[k]
	if !ok {
		e = &entry{ready: make(chan struct{}), lock: make(chan struct{}, 1)}
		p.entries[k] = e
	}
	p.mu.Unlock()

	if !ok {
		e.p, e.err = p.factory(ctx, opts)
		if e.err != nil {
			p.mu.Lock()
			if p.entries[k] == e {
				delete(p.entries, k)
			}
			p.mu.Unlock()
		}
		close(e.ready)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e, nil
}

// evict drops e if it is still cached for opts and closes it. Closing twice
// is harmless, so concurrent evictions of the same entry are fine.
func (p *pool) evict(opts phonemizer.Options, e *entry) {
	k := keyFor(opts)

	p.mu.Lock()
	if p.entries[k] == e {
		delete(p.entries, k)
	}
	p.mu.Unlock()

	_ = e.p.Close()
}

func (p *pool) close() error {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = make(map[poolKey]*entry)
	p.mu.Unlock()

	var errs []error
	for _, e := range entries {
		<-e.ready
		if e.err != nil {
			continue
		}
		if err := e.p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
