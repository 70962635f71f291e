package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultRestartBackoff = 500 * time.Millisecond
	defaultMaxRestarts    = 3
	defaultStopTimeout    = 5 * time.Second
)

// ErrSupervisorClosed is returned when starting an already stopped supervisor.
var ErrSupervisorClosed = errors.New("supervisor already stopped")

type supervisorOptions struct {
	restartBackoff time.Duration
	maxRestarts    int
	stopTimeout    time.Duration
}

type SupervisorOption func(*supervisorOptions)

// WithRestartBackoff sets the base delay before a crashed module is
// restarted. The delay doubles with every consecutive failure.
func WithRestartBackoff(backoff time.Duration) SupervisorOption {
	return func(o *supervisorOptions) {
		if backoff > 0 {
			o.restartBackoff = backoff
		}
	}
}

// WithMaxRestarts bounds how many times a crashing module is restarted
// before it is marked failed and the supervisor gives up on the agent.
func WithMaxRestarts(restarts int) SupervisorOption {
	return func(o *supervisorOptions) {
		if restarts >= 0 {
			o.maxRestarts = restarts
		}
	}
}

// WithStopTimeout bounds how long Stop waits for modules to drain.
func WithStopTimeout(timeout time.Duration) SupervisorOption {
	return func(o *supervisorOptions) {
		if timeout > 0 {
			o.stopTimeout = timeout
		}
	}
}

// Supervisor runs registered modules, restarts the ones that crash with
// exponential backoff, and reports the first module that exhausts its
// restart budget.
type Supervisor struct {
	options supervisorOptions

	handles []*moduleHandle

	cancel   context.CancelFunc
	stopping chan struct{}
	wg       sync.WaitGroup

	failedOnce sync.Once
	failed     chan error

	closeOnce sync.Once
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	options := supervisorOptions{
		restartBackoff: defaultRestartBackoff,
		maxRestarts:    defaultMaxRestarts,
		stopTimeout:    defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Supervisor{
		options:  options,
		stopping: make(chan struct{}),
		failed:   make(chan error, 1),
	}
}

// Add registers a module. Call before Start; modules added later are not
// picked up.
func (s *Supervisor) Add(module Module) {
	s.handles = append(s.handles, newModuleHandle(module))
}

// Start launches every registered module. Cancelling ctx is equivalent to
// calling Stop.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, handle := range s.handles {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.supervise(ctx, handle)
		}()
	}
}

func (s *Supervisor) supervise(ctx context.Context, handle *moduleHandle) {
	name := handle.module.Name()
	run := panicSafeNamedWorker(name, handle.module.Run)

	for {
		handle.setState(ModuleRunning)
		logger.Info("module started", "module", name, "restarts", handle.status().Restarts)

		err := run(ctx)

		if ctx.Err() != nil {
			// Shutdown in progress; a non-nil err here is a drain artifact,
			// not a crash.
			handle.setState(ModuleStopped)
			return
		}
		if err == nil {
			logger.Info("module finished", "module", name)
			handle.setState(ModuleStopped)
			return
		}

		failures := handle.recordFailure(err)
		moduleRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("module", name)))
		if failures > s.options.maxRestarts {
			handle.setState(ModuleFailed)
			logger.Error("module failed permanently", "module", name, "failures", failures, "error", err)
			s.fail(fmt.Errorf("module %s failed after %d restarts: %w", name, failures-1, err))
			return
		}

		backoff := s.options.restartBackoff << (failures - 1)
		logger.Warn("module crashed, restarting",
			"module", name, "failures", failures, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			handle.setState(ModuleStopped)
			return
		}
	}
}

func (s *Supervisor) fail(err error) {
	s.failedOnce.Do(func() { s.failed <- err })
}

// Wait blocks until a module fails permanently or the supervisor stops. The
// returned error is nil on clean shutdown.
func (s *Supervisor) Wait() error {
	select {
	case err := <-s.failed:
		return err
	case <-s.stopping:
		s.wg.Wait()
		return nil
	}
}

// Status reports a snapshot of every module.
func (s *Supervisor) Status() []ModuleStatus {
	statuses := make([]ModuleStatus, 0, len(s.handles))
	for _, handle := range s.handles {
		statuses = append(statuses, handle.status())
	}
	return statuses
}

// Stop cancels every module and waits for them to drain, up to the stop
// timeout. Modules still running at the deadline are abandoned.
func (s *Supervisor) Stop() {
	s.closeOnce.Do(func() {
		for _, handle := range s.handles {
			handle.mu.Lock()
			if handle.state == ModuleRunning {
				handle.state = ModuleStopping
			}
			handle.mu.Unlock()
		}

		if s.cancel != nil {
			s.cancel()
		}
		close(s.stopping)

		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
			logger.Info("all modules stopped")
		case <-time.After(s.options.stopTimeout):
			logger.Warn("stop timeout expired with modules still draining",
				"timeout", s.options.stopTimeout)
		}
	})
}
