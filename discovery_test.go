package mdt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiscoverer(t *testing.T, bus *fakeBus, opts ...DiscoveryOption) *Discoverer {
	t.Helper()
	p, err := NewProber(fastProbeOptions(bus))
	require.NoError(t, err)
	d, err := NewDiscoverer(append([]DiscoveryOption{WithLister(bus), WithProber(p)}, opts...)...)
	require.NoError(t, err)
	return d
}

func TestDiscoverEmpty(t *testing.T) {
	d := newTestDiscoverer(t, newFakeBus())

	results, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestDiscoverEnumerationFailure(t *testing.T) {
	bus := newFakeBus()
	bus.listErr = errors.New("permission denied reading /dev")

	_, err := newTestDiscoverer(t, bus).Discover(context.Background())
	assert.Error(t, err)
}

func TestDiscoverRanksConfirmedFirst(t *testing.T) {
	bus := newFakeBus().
		add("/dev/ttyS0", newGarbage("?\r>")).
		addBroken("/dev/ttyACM0", errors.New("permission denied")).
		add("/dev/ttyUSB1", newMDT("MDT694B")).
		add("/dev/ttyUSB0", newMDT("MDT693B")).
		add("/dev/ttyUSB2", newSilent())

	results, err := newTestDiscoverer(t, bus).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)

	var ports []string
	for _, r := range results {
		ports = append(ports, r.Port)
	}
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyS0", "/dev/ttyUSB2"}, ports)

	assert.Equal(t, "MDT693B", results[0].Model)
	assert.Equal(t, "MDT694B", results[1].Model)
	assert.Equal(t, ClassUnresponsive, results[2].Class)
	assert.Equal(t, ClassUnknown, results[3].Class)
	assert.Equal(t, ClassUnknown, results[4].Class)
	assert.Equal(t, 2, countConfirmed(results))
}

func TestDiscoverReportsEveryPortOnce(t *testing.T) {
	bus := newFakeBus()
	for _, p := range []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3"} {
		bus.add(p, newSilent())
	}

	var mu sync.Mutex
	seen := map[string]int{}
	d := newTestDiscoverer(t, bus, WithWorkers(4), WithOnResult(func(r ProbeResult) {
		mu.Lock()
		seen[r.Port]++
		mu.Unlock()
	}))

	start := time.Now()
	results, err := d.Discover(context.Background())
	require.NoError(t, err)

	assert.Len(t, results, 4)
	assert.Len(t, seen, 4)
	for port, n := range seen {
		assert.Equal(t, 1, n, port)
	}
	// four silent ports at 200ms each run in parallel
	assert.Less(t, time.Since(start), 700*time.Millisecond)
}

func TestDiscoverBoundedParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	bus := newFakeBus()
	for i := 0; i < 10; i++ {
		bus.add("/dev/ttyUSB"+string(rune('0'+i)), newSilent())
	}
	open := bus.Open
	opts := fastProbeOptions(bus)
	opts.Timeout = 30 * time.Millisecond
	opts.Open = func(device string, o ...Option) (Port, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return &countingPort{Port: mustOpen(open(device, o...)), done: func() { inFlight.Add(-1) }}, nil
	}
	p, err := NewProber(opts)
	require.NoError(t, err)

	d, err := NewDiscoverer(WithLister(bus), WithProber(p), WithWorkers(3))
	require.NoError(t, err)
	_, err = d.Discover(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

type countingPort struct {
	Port
	done func()
}

func (p *countingPort) Close() error {
	p.done()
	return p.Port.Close()
}

func mustOpen(p Port, err error) Port {
	if err != nil {
		panic(err)
	}
	return p
}

func TestDiscoverNoProbe(t *testing.T) {
	bus := newFakeBus()
	bus.devices["/dev/ttyUSB0"] = newMDT("MDT693B")
	bus.infos = []PortInfo{
		{Name: "ttyUSB0", Path: "/dev/ttyUSB0", VendorID: "0403", ProductID: "6001"},
		{Name: "ttyACM0", Path: "/dev/ttyACM0", VendorID: "1313", Product: "MDT693B"},
	}

	results, err := newTestDiscoverer(t, bus, WithActiveProbe(false)).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "/dev/ttyACM0", results[0].Port)
	assert.Equal(t, ClassConfirmed, results[0].Class)
	assert.Equal(t, ClassUnknown, results[1].Class)
	assert.Zero(t, bus.devices["/dev/ttyUSB0"].opens, "no-probe mode must not open ports")
}

func TestDiscoverContainsPanics(t *testing.T) {
	bus := newFakeBus().add("/dev/ttyUSB0", newMDT("MDT693B")).add("/dev/ttyUSB1", newMDT("MDT693B"))
	opts := fastProbeOptions(bus)
	opts.Open = func(device string, o ...Option) (Port, error) {
		if device == "/dev/ttyUSB1" {
			panic("driver bug")
		}
		return bus.Open(device, o...)
	}
	p, err := NewProber(opts)
	require.NoError(t, err)
	d, err := NewDiscoverer(WithLister(bus), WithProber(p))
	require.NoError(t, err)

	results, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ClassConfirmed, results[0].Class)
	assert.Equal(t, ClassUnresponsive, results[1].Class)
}

func TestWithWorkersClamps(t *testing.T) {
	d, err := NewDiscoverer(WithLister(newFakeBus()), WithWorkers(100))
	require.NoError(t, err)
	assert.Equal(t, MaxWorkers, d.workers)

	d, err = NewDiscoverer(WithLister(newFakeBus()), WithWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, 1, d.workers)

	_, err = NewDiscoverer(WithLister(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRank(t *testing.T) {
	results := []ProbeResult{
		{Port: "/dev/ttyUSB9", Class: ClassUnknown},
		{Port: "/dev/ttyUSB3", Class: ClassConfirmed},
		{Port: "/dev/ttyACM0", Class: ClassUnresponsive},
		{Port: "/dev/ttyUSB1", Class: ClassConfirmed},
	}
	Rank(results)

	var ports []string
	for _, r := range results {
		ports = append(ports, r.Port)
	}
	assert.Equal(t, []string{"/dev/ttyUSB1", "/dev/ttyUSB3", "/dev/ttyACM0", "/dev/ttyUSB9"}, ports)
}
