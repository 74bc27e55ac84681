// Package gateway reads gateway objects from the management server and clones
// them into new ones.
package gateway

import "github.com/martinsuchenak/gwconsole/internal/metrics"

const defaultPageSize = 500

type options struct {
	metrics  *metrics.Registry
	pageSize int
}

// Option configures an Accessor or a Cloner.
type Option func(*options)

// WithMetrics records refresh and clone outcomes.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithPageSize sets the list page size. Values outside 1..500 are ignored.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 && n <= defaultPageSize {
			o.pageSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
