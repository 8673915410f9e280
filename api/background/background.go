package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Background runs fire-and-forget tasks that must not outlive a graceful
// shutdown.
type Background struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

// Go runs fn in its own goroutine. A panic in fn is logged and swallowed.
func (b *Background) Go(fn func()) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				b.log.Error(fmt.Errorf("background task panic: %v", err))
			}
		}()

		fn()
	}()
}

// Shutdown waits for running tasks until ctx is done.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
