package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is a resource released at shutdown
type Closer interface {
	Close() error
}

// Func performs cleanup during shutdown
type Func func(ctx context.Context) error

// Coordinator turns SIGINT/SIGTERM into context cancellation for a
// running build and releases registered resources in priority order.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	steps []step

	shutdownOnce sync.Once
	stopSignals  func()
}

type step struct {
	name     string
	priority int // Lower = released first
	closer   Closer
	hook     Func
}

// New creates a coordinator whose context is cancelled on the first
// SIGINT or SIGTERM, or on Trigger.
func New(parent context.Context, timeout time.Duration, logger zerolog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		timeout: timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	c.stopSignals = func() {
		signal.Stop(sigCh)
		close(done)
	}

	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Warn().
				Str("signal", sig.String()).
				Msg("Received signal, cancelling build")
			cancel()
		case <-done:
		}
	}()

	return c
}

// Context is cancelled when a signal arrives or Trigger is called.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Trigger cancels the context programmatically. Safe to call from
// multiple goroutines.
func (c *Coordinator) Trigger() {
	c.cancel()
}

// Register releases closer at shutdown. Lower priorities run first.
func (c *Coordinator) Register(name string, closer Closer, priority int) {
	c.add(step{name: name, priority: priority, closer: closer})
}

// RegisterHook runs hook at shutdown. Lower priorities run first.
func (c *Coordinator) RegisterHook(name string, hook Func, priority int) {
	c.add(step{name: name, priority: priority, hook: hook})
}

func (c *Coordinator) add(s step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, s)

	c.logger.Debug().
		Str("name", s.name).
		Int("priority", s.priority).
		Msg("Registered for shutdown")
}

// Shutdown stops signal handling, cancels the context and releases every
// registered resource once. The first error is returned; remaining steps
// still run unless the timeout expires.
func (c *Coordinator) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		c.stopSignals()
		c.cancel()

		c.mu.Lock()
		steps := make([]step, len(c.steps))
		copy(steps, c.steps)
		c.mu.Unlock()

		sort.SliceStable(steps, func(i, j int) bool {
			return steps[i].priority < steps[j].priority
		})

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()
		for _, s := range steps {
			if ctx.Err() != nil {
				c.logger.Warn().
					Str("name", s.name).
					Msg("Shutdown timeout reached, skipping remaining steps")
				if shutdownErr == nil {
					shutdownErr = ctx.Err()
				}
				return
			}

			var err error
			if s.hook != nil {
				err = s.hook(ctx)
			} else {
				err = s.closer.Close()
			}
			if err != nil {
				c.logger.Error().
					Err(err).
					Str("name", s.name).
					Msg("Shutdown step failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		c.logger.Debug().
			Dur("duration", time.Since(start)).
			Int("steps", len(steps)).
			Msg("Shutdown complete")
	})

	return shutdownErr
}

// Release order for the build command
const (
	PriorityStaging = 10 // Remove staged source files
	PriorityArchive = 20 // Remove temporary archive files
	PriorityCatalog = 30 // Close the build catalog
	PriorityStorage = 40 // Close storage backends
)
