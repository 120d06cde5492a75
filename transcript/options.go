package transcript

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/convtree/internal/pool"
	"go.uber.org/zap"
)

// Option configures any backend.
type Option func(*options)

type options struct {
	models  map[string]string
	pricing Pricing
	now     func() time.Time
	logger  *zap.Logger
}

func newOptions(opts []Option) options {
	o := options{
		models:  map[string]string{},
		pricing: DefaultPricing(),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithModels sets the role→model map written into every document.
func WithModels(models map[string]string) Option {
	return func(o *options) {
		o.models = make(map[string]string, len(models))
		for k, v := range models {
			o.models[k] = v
		}
	}
}

// WithPricing sets the per-role token prices used in ledger records.
func WithPricing(p Pricing) Option {
	return func(o *options) { o.pricing = p }
}

// WithClock overrides the document timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// encodeJSON renders v with four-space indentation and without HTML
// escaping. The returned slice is owned by the caller.
func encodeJSON(v any) ([]byte, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
