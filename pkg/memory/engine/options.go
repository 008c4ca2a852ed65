package engine

import (
	"math"
	"time"
)

// Params are the constants of the scoring formula.
type Params struct {
	// BaseLambda is the decay rate of an importance-1 memory per message.
	BaseLambda float64 `mapstructure:"base_lambda" yaml:"base_lambda"`
	// Importance5Floor is the minimum base score of an importance-5 memory.
	Importance5Floor float64 `mapstructure:"importance5_floor" yaml:"importance5_floor"`
	VectorThreshold  float64 `mapstructure:"vector_threshold" yaml:"vector_threshold"`
	VectorWeight     float64 `mapstructure:"vector_weight" yaml:"vector_weight"`
	KeywordWeight    float64 `mapstructure:"keyword_weight" yaml:"keyword_weight"`
	// K1 and B are the BM25 term-saturation and length-normalisation knobs.
	K1 float64 `mapstructure:"k1" yaml:"k1"`
	B  float64 `mapstructure:"b" yaml:"b"`
}

// DefaultParams returns the recommended scoring constants.
func DefaultParams() Params {
	return Params{
		BaseLambda:       0.05,
		Importance5Floor: 1.0,
		VectorThreshold:  0.5,
		VectorWeight:     15,
		KeywordWeight:    1.0,
		K1:               1.2,
		B:                0.75,
	}
}

// Normalized clamps out-of-range values so the formula stays total.
func (p Params) Normalized() Params {
	d := DefaultParams()
	p.BaseLambda = nonNegative(p.BaseLambda)
	p.Importance5Floor = nonNegative(p.Importance5Floor)
	p.VectorWeight = nonNegative(p.VectorWeight)
	p.KeywordWeight = nonNegative(p.KeywordWeight)
	if math.IsNaN(p.VectorThreshold) || p.VectorThreshold < 0 {
		p.VectorThreshold = 0
	}
	if p.VectorThreshold >= 1 {
		// No similarity can exceed 1, so the vector bonus is disabled.
		p.VectorThreshold = 1
	}
	if math.IsNaN(p.K1) || p.K1 <= 0 {
		p.K1 = d.K1
	}
	if math.IsNaN(p.B) || p.B < 0 {
		p.B = 0
	}
	if p.B > 1 {
		p.B = 1
	}
	return p
}

func (p Params) isZero() bool {
	return p == Params{}
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Options configures a scoring Service.
type Options struct {
	Params Params
	// Offload runs scoring on the background worker instead of the caller's
	// goroutine.
	Offload bool
	// Timeout bounds one offloaded call.
	Timeout   time.Duration
	CacheSize int
}

// DefaultOptions returns the recommended defaults for a Service.
func DefaultOptions() Options {
	return Options{
		Params:    DefaultParams(),
		Offload:   true,
		Timeout:   10 * time.Second,
		CacheSize: 500,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.Params.isZero() {
		o.Params = defaults.Params
	}
	o.Params = o.Params.Normalized()
	if o.Timeout <= 0 {
		o.Timeout = defaults.Timeout
	}
	if o.CacheSize <= 0 {
		o.CacheSize = defaults.CacheSize
	}
	return o
}
