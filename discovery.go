package mdt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the default number of ports probed at once.
	DefaultWorkers = 8
	// MaxWorkers caps concurrent probes to keep OS handle usage bounded.
	MaxWorkers = 16
)

// Discoverer finds MDT controllers among the system's serial ports.
type Discoverer struct {
	lister      Lister
	prober      *Prober
	activeProbe bool
	workers     int
	onResult    func(ProbeResult)
	log         zerolog.Logger
}

// DiscoveryOption configures a Discoverer
type DiscoveryOption func(*Discoverer) error

// WithActiveProbe turns port probing on or off. When off, ports are
// classified from vendor/product identifiers only.
func WithActiveProbe(on bool) DiscoveryOption {
	return func(d *Discoverer) error {
		d.activeProbe = on
		return nil
	}
}

// WithWorkers sets the number of concurrent probes, clamped to 1..MaxWorkers.
func WithWorkers(n int) DiscoveryOption {
	return func(d *Discoverer) error {
		d.workers = max(1, min(n, MaxWorkers))
		return nil
	}
}

// WithLister replaces the platform port lister.
func WithLister(l Lister) DiscoveryOption {
	return func(d *Discoverer) error {
		if l == nil {
			return ErrInvalidConfig
		}
		d.lister = l
		return nil
	}
}

// WithProber replaces the default prober.
func WithProber(p *Prober) DiscoveryOption {
	return func(d *Discoverer) error {
		if p == nil {
			return ErrInvalidConfig
		}
		d.prober = p
		return nil
	}
}

// WithOnResult registers a callback invoked once per port as results
// arrive. It may be called from several goroutines at once.
func WithOnResult(fn func(ProbeResult)) DiscoveryOption {
	return func(d *Discoverer) error {
		d.onResult = fn
		return nil
	}
}

// WithDiscoveryLogger sets the logger.
func WithDiscoveryLogger(log zerolog.Logger) DiscoveryOption {
	return func(d *Discoverer) error {
		d.log = log
		return nil
	}
}

// NewDiscoverer returns a Discoverer with active probing, DefaultWorkers
// and the platform lister unless overridden.
func NewDiscoverer(opts ...DiscoveryOption) (*Discoverer, error) {
	d := &Discoverer{
		lister:      DefaultLister(),
		activeProbe: true,
		workers:     DefaultWorkers,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.prober == nil {
		popts := DefaultProbeOptions()
		popts.Logger = d.log
		p, err := NewProber(popts)
		if err != nil {
			return nil, err
		}
		d.prober = p
	}
	return d, nil
}

// Discover lists the present ports and classifies each one. Only a failure
// of the listing itself is returned; per-port problems end up in the
// results. Confirmed controllers come first, then ports in lexical order.
func (d *Discoverer) Discover(ctx context.Context) ([]ProbeResult, error) {
	start := time.Now()
	ports, err := d.lister.ListPorts()
	if err != nil {
		return nil, err
	}
	d.log.Debug().Int("ports", len(ports)).Bool("probe", d.activeProbe).Msg("discovery started")

	results := make([]ProbeResult, 0, len(ports))
	var mu sync.Mutex
	collect := func(r ProbeResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if d.onResult != nil {
			d.onResult(r)
		}
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, info := range ports {
		g.Go(func() error {
			collect(d.classify(ctx, info))
			return nil
		})
	}
	_ = g.Wait()

	Rank(results)
	d.log.Info().Int("ports", len(results)).Int("confirmed", countConfirmed(results)).
		Dur("elapsed", time.Since(start)).Msg("discovery finished")
	return results, nil
}

func (d *Discoverer) classify(ctx context.Context, info PortInfo) (result ProbeResult) {
	defer func() {
		// a panicking prober must not take the rest of the scan down
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("port", info.Path).Msg("probe panicked")
			result = ProbeResult{Port: info.Path, Info: info, Class: ClassUnresponsive, Error: "probe panicked"}
		}
	}()

	if !d.activeProbe {
		return IdentifyByID(info)
	}
	return d.prober.Probe(ctx, info)
}

// Rank orders results in place: confirmed controllers first, ties broken
// by port name.
func Rank(results []ProbeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		ci, cj := results[i].Confirmed(), results[j].Confirmed()
		if ci != cj {
			return ci
		}
		return results[i].Port < results[j].Port
	})
}

func countConfirmed(results []ProbeResult) int {
	n := 0
	for _, r := range results {
		if r.Confirmed() {
			n++
		}
	}
	return n
}

// Discover runs a one-off discovery with the given options.
func Discover(ctx context.Context, opts ...DiscoveryOption) ([]ProbeResult, error) {
	d, err := NewDiscoverer(opts...)
	if err != nil {
		return nil, err
	}
	return d.Discover(ctx)
}
