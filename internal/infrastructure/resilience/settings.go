package resilience

import "time"

// Retry controls the exponential backoff loop around one upstream call.
type Retry struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Breaker controls the per-operation circuit breaker.
type Breaker struct {
	Enabled       bool
	MinRequests   uint32
	FailureRatio  float64
	OpenFor       time.Duration
	HalfOpenCalls uint32
}

type Settings struct {
	Retry   Retry
	Breaker Breaker
}

func DefaultSettings() Settings {
	return Settings{
		Retry: Retry{
			Attempts:   3,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   500 * time.Millisecond,
			Multiplier: 2.0,
		},
		Breaker: Breaker{
			Enabled:       true,
			MinRequests:   10,
			FailureRatio:  0.5,
			OpenFor:       30 * time.Second,
			HalfOpenCalls: 2,
		},
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	out := s

	if out.Retry.Attempts <= 0 {
		out.Retry.Attempts = def.Retry.Attempts
	}
	if out.Retry.BaseDelay <= 0 {
		out.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if out.Retry.MaxDelay < out.Retry.BaseDelay {
		out.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if out.Retry.MaxDelay < out.Retry.BaseDelay {
		out.Retry.MaxDelay = out.Retry.BaseDelay
	}
	if out.Retry.Multiplier < 1.0 {
		out.Retry.Multiplier = def.Retry.Multiplier
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenFor <= 0 {
		out.Breaker.OpenFor = def.Breaker.OpenFor
	}
	if out.Breaker.HalfOpenCalls == 0 {
		out.Breaker.HalfOpenCalls = def.Breaker.HalfOpenCalls
	}

	return out
}
