//go:build unix

package visibility

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// Signals is a process-level Notifier for terminal hosts. SIGUSR1 marks the
// view hidden; SIGUSR2 and SIGCONT (resumed from job control) mark it visible.
type Signals struct {
	*Manual
	ch        chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// NewSignals starts listening for visibility signals. The view starts
// visible. Call Close to stop listening.
func NewSignals() *Signals {
	s := &Signals{
		Manual: NewManual(true),
		ch:     make(chan os.Signal, 4),
		done:   make(chan struct{}),
	}
	signal.Notify(s.ch, unix.SIGUSR1, unix.SIGUSR2, unix.SIGCONT)
	go s.run()
	return s
}

func (s *Signals) run() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.ch:
			switch sig {
			case unix.SIGUSR1:
				s.SetVisible(false)
			case unix.SIGUSR2, unix.SIGCONT:
				s.SetVisible(true)
			}
		}
	}
}

// Close stops signal delivery. It is safe to call more than once.
func (s *Signals) Close() error {
	s.closeOnce.Do(func() {
		signal.Stop(s.ch)
		close(s.done)
	})
	return nil
}
