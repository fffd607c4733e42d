package pubsub

import (
	"context"
	"errors"
	"sync"
)

// Registry tracks endpoints for coordinated shutdown. It does not own them.
type Registry struct {
	url  string
	opts Options

	mu        sync.Mutex
	endpoints []*Endpoint
}

// NewRegistry returns a registry whose Open dials url with opts.
func NewRegistry(url string, opts Options) *Registry {
	return &Registry{url: url, opts: opts}
}

func (r *Registry) Track(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, e)
}

// Open opens an endpoint with the registry's defaults and tracks it.
func (r *Registry) Open(ctx context.Context, kind Kind, target string) (*Endpoint, error) {
	e, err := Open(ctx, r.url, kind, target, r.opts)
	if err != nil {
		return nil, err
	}
	r.Track(e)
	return e, nil
}

// OpenWith is Open with per-endpoint options.
func (r *Registry) OpenWith(ctx context.Context, kind Kind, target string, opts Options) (*Endpoint, error) {
	e, err := Open(ctx, r.url, kind, target, opts)
	if err != nil {
		return nil, err
	}
	r.Track(e)
	return e, nil
}

func (r *Registry) Endpoints() []*Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// ShutdownAll shuts every tracked endpoint down concurrently. A failure never
// stops the others; all failures are joined into the returned error.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	endpoints := r.Endpoints()

	errs := make([]error, len(endpoints))
	var wg sync.WaitGroup
	for i, e := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.Shutdown(ctx)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Leaked returns tracked endpoints that are not yet closed.
func (r *Registry) Leaked() []*Endpoint {
	var leaked []*Endpoint
	for _, e := range r.Endpoints() {
		if e.State() != StateClosed {
			leaked = append(leaked, e)
		}
	}
	return leaked
}
