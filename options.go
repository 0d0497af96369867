package gidref

import (
	"log/slog"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/metrics"
	"github.com/hupe1980/gidref/wire"
)

type options struct {
	localityID    core.LocalityID
	logger        *Logger
	observer      metrics.Observer
	initialLog2   uint8 // 0: follow the authority
	maxInflight   int64
	decrementRate float64
	cacheCapacity int
	cacheMemory   int64
	compression   wire.Compression
	onError       func(error)
}

// Option configures a Locality.
type Option func(*options)

// DefaultCacheCapacity is the number of resolved addresses kept per
// locality.
const DefaultCacheCapacity = 4096

// WithLocalityID sets the id of the locality. Ids must be unique among the
// localities sharing an authority.
func WithLocalityID(id core.LocalityID) Option {
	return func(o *options) {
		o.localityID = id
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := gidref.NewJSONLogger(os.Stderr, slog.LevelInfo)
//	loc, _ := gidref.New(authority, gidref.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel logs text to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(nil, level)
	}
}

// WithMetricsObserver configures an observer for credit and release events.
// Pass nil to disable metrics collection.
//
// Example with BasicObserver:
//
//	obs := &metrics.BasicObserver{}
//	loc, _ := gidref.New(authority, gidref.WithMetricsObserver(obs))
//	// ... use loc ...
//	stats := obs.Stats()
//	fmt.Printf("Splits: %d, Replenishes: %d\n", stats.Splits, stats.Replenishes)
func WithMetricsObserver(obs metrics.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithInitialCreditLog2 sets the exponent of the initial credit. It must
// match the authority's initial credit.
func WithInitialCreditLog2(log2 uint8) Option {
	return func(o *options) {
		o.initialLog2 = log2
	}
}

// WithMaxInflightDecrements bounds the number of concurrent background
// credit calls.
func WithMaxInflightDecrements(n int64) Option {
	return func(o *options) {
		o.maxInflight = n
	}
}

// WithDecrementRate limits background credit calls per second.
// 0 means unlimited.
func WithDecrementRate(perSec float64) Option {
	return func(o *options) {
		o.decrementRate = perSec
	}
}

// WithCacheCapacity sets the number of resolved addresses kept. A capacity
// of zero or less disables the cache, and with it local destruction of
// components that were never shared.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// WithCacheMemoryLimit bounds the memory of the address cache in bytes.
func WithCacheMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.cacheMemory = bytes
	}
}

// WithCompression sets the body compression of encoded parcels.
func WithCompression(c wire.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithOnError receives failures of background credit traffic while the
// locality is running.
func WithOnError(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:        NoopLogger(),
		observer:      metrics.NoopObserver{},
		cacheCapacity: DefaultCacheCapacity,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.observer == nil {
		o.observer = metrics.NoopObserver{}
	}
	return o
}
