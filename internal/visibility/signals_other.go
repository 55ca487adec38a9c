//go:build !unix

package visibility

// Signals is always visible on platforms without job-control signals.
type Signals struct {
	*Manual
}

// NewSignals returns a notifier that never changes.
func NewSignals() *Signals {
	return &Signals{Manual: NewManual(true)}
}

// Close is a no-op.
func (s *Signals) Close() error { return nil }
