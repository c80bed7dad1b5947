package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cryptomarket/internal/errs"

	"github.com/rs/zerolog/log"
)

// Constructor builds the underlying client for one exchange. Construction is
// treated as expensive, so the registry runs each constructor at most once
// per name for the process lifetime (unless it fails, in which case a later
// call retries).
type Constructor func() (Client, error)

// construction tracks one in-flight constructor run. Callers arriving while
// it runs block on done and share its outcome instead of racing a duplicate
// construction.
type construction struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Registry hands out one shared Handle per supported exchange name.
//
// The supported set is closed at construction time: a name without a
// registered constructor fails fast with ExchangeNotSupportedError rather
// than attempting any dynamic lookup. The registry has an explicit lifecycle
// (built at service start, injected where needed) and owns its own
// synchronization.
type Registry struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	handles      map[string]*Handle
	inflight     map[string]*construction
}

// NewRegistry creates a registry over the given closed set of exchange
// constructors. Names are matched case-insensitively.
func NewRegistry(constructors map[string]Constructor) *Registry {
	normalized := make(map[string]Constructor, len(constructors))
	for name, ctor := range constructors {
		normalized[strings.ToLower(name)] = ctor
	}
	return &Registry{
		constructors: normalized,
		handles:      make(map[string]*Handle),
		inflight:     make(map[string]*construction),
	}
}

// Supported returns the sorted list of exchange names this registry can serve.
func (r *Registry) Supported() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetHandle returns the shared handle for name, constructing it on first use.
//
// Concurrent first-time callers for the same name trigger exactly one
// construction; the rest block until it completes and share the result. A
// failed construction releases every waiter with the originating error and is
// not cached, so a later call retries from scratch.
func (r *Registry) GetHandle(ctx context.Context, name string) (*Handle, error) {
	name = strings.ToLower(name)

	r.mu.Lock()
	if h, ok := r.handles[name]; ok {
		r.mu.Unlock()
		return h, nil
	}

	ctor, ok := r.constructors[name]
	if !ok {
		r.mu.Unlock()
		return nil, &errs.ExchangeNotSupportedError{Exchange: name}
	}

	if c, ok := r.inflight[name]; ok {
		r.mu.Unlock()
		select {
		case <-c.done:
			return c.handle, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &construction{done: make(chan struct{})}
	r.inflight[name] = c
	r.mu.Unlock()

	client, err := ctor()

	r.mu.Lock()
	delete(r.inflight, name)
	if err != nil {
		c.err = &errs.UpstreamAPIError{Exchange: name, Op: "initialize", Cause: err}
		log.Error().Err(err).Str("exchange", name).Msg("exchange client construction failed")
	} else {
		c.handle = newHandle(name, client)
		r.handles[name] = c.handle
		log.Info().Str("exchange", name).Msg("exchange client constructed")
	}
	r.mu.Unlock()
	close(c.done)

	return c.handle, c.err
}

// Handle is the shared per-exchange handle: an immutable identity plus the
// underlying client and a lazily loaded market set used for symbol validation.
type Handle struct {
	name   string
	client Client

	marketsMu sync.Mutex
	symbols   map[string]struct{} // nil until the first successful load
}

func newHandle(name string, client Client) *Handle {
	return &Handle{name: name, client: client}
}

// Name returns the exchange identifier this handle serves.
func (h *Handle) Name() string { return h.name }

// Client returns the underlying exchange client.
func (h *Handle) Client() Client { return h.client }

// HasSymbol reports whether symbol is tradable on this exchange, loading the
// exchange's market list on first use and caching it on the handle. A failed
// load is not cached; the next call retries.
func (h *Handle) HasSymbol(ctx context.Context, symbol string) (bool, error) {
	h.marketsMu.Lock()
	defer h.marketsMu.Unlock()

	if h.symbols == nil {
		markets, err := h.client.FetchMarkets(ctx)
		if err != nil {
			return false, err
		}
		symbols := make(map[string]struct{}, len(markets))
		for _, m := range markets {
			symbols[strings.ToUpper(m.Symbol)] = struct{}{}
		}
		h.symbols = symbols
		log.Debug().Str("exchange", h.name).Int("count", len(symbols)).Msg("market set loaded")
	}

	_, ok := h.symbols[strings.ToUpper(symbol)]
	return ok, nil
}
