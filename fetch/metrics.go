package fetch

import "time"

// Metrics receives fetch-level signals.
type Metrics interface {
	// Attempt is called before every call of the fetch function.
	Attempt()
	// Retry is called when a failed attempt will be retried after delay.
	Retry(delay time.Duration)
	Success()
	// Failure is called once per fetch that gave up; auth reports whether
	// it stopped on a 401/403.
	Failure(auth bool)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Attempt()            {}
func (NoopMetrics) Retry(time.Duration) {}
func (NoopMetrics) Success()            {}
func (NoopMetrics) Failure(bool)        {}

var _ Metrics = NoopMetrics{}
