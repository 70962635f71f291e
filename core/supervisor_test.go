package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedModule struct {
	name string
	runs atomic.Int32
	run  func(ctx context.Context, attempt int32) error
}

func (m *scriptedModule) Name() string { return m.name }

func (m *scriptedModule) Run(ctx context.Context) error {
	return m.run(ctx, m.runs.Add(1))
}

func moduleStatus(t *testing.T, s *Supervisor, name string) ModuleStatus {
	t.Helper()
	for _, status := range s.Status() {
		if status.Name == name {
			return status
		}
	}
	t.Fatalf("no status for module %q", name)
	return ModuleStatus{}
}

func TestSupervisorRestartsCrashedModule(t *testing.T) {
	recovered := make(chan struct{})
	module := &scriptedModule{
		name: "flaky",
		run: func(ctx context.Context, attempt int32) error {
			if attempt <= 2 {
				return errors.New("device hiccup")
			}
			close(recovered)
			<-ctx.Done()
			return nil
		},
	}

	supervisor := NewSupervisor(WithRestartBackoff(time.Millisecond), WithMaxRestarts(3))
	supervisor.Add(module)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	supervisor.Start(ctx)

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatalf("module was not restarted after crashing, runs=%d", module.runs.Load())
	}

	if status := moduleStatus(t, supervisor, "flaky"); status.Restarts != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", status.Restarts)
	}

	supervisor.Stop()
	if err := supervisor.Wait(); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if status := moduleStatus(t, supervisor, "flaky"); status.State != ModuleStopped {
		t.Fatalf("expected stopped module, got %s", status.State)
	}
}

func TestSupervisorReportsPermanentFailure(t *testing.T) {
	module := &scriptedModule{
		name: "doomed",
		run: func(context.Context, int32) error {
			return errors.New("unrecoverable")
		},
	}

	supervisor := NewSupervisor(WithRestartBackoff(time.Millisecond), WithMaxRestarts(1))
	supervisor.Add(module)
	supervisor.Start(context.Background())
	defer supervisor.Stop()

	errs := make(chan error, 1)
	go func() { errs <- supervisor.Wait() }()

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected a permanent failure error")
		}
		if !strings.Contains(err.Error(), "doomed") {
			t.Fatalf("error does not name the failed module: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not report the failure")
	}

	if status := moduleStatus(t, supervisor, "doomed"); status.State != ModuleFailed {
		t.Fatalf("expected failed module, got %s", status.State)
	}
}

func TestSupervisorRecoversFromPanic(t *testing.T) {
	recovered := make(chan struct{})
	module := &scriptedModule{
		name: "panicky",
		run: func(ctx context.Context, attempt int32) error {
			if attempt == 1 {
				panic("nil map write")
			}
			close(recovered)
			<-ctx.Done()
			return nil
		},
	}

	supervisor := NewSupervisor(WithRestartBackoff(time.Millisecond), WithMaxRestarts(2))
	supervisor.Add(module)
	supervisor.Start(context.Background())
	defer supervisor.Stop()

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatalf("panicking module was not restarted")
	}

	status := moduleStatus(t, supervisor, "panicky")
	if status.Err == nil || !strings.Contains(status.Err.Error(), "panicked") {
		t.Fatalf("expected recorded panic error, got %v", status.Err)
	}
}

func TestSupervisorModuleFinishingCleanlyIsNotRestarted(t *testing.T) {
	module := &scriptedModule{
		name: "one-shot",
		run:  func(context.Context, int32) error { return nil },
	}

	supervisor := NewSupervisor(WithRestartBackoff(time.Millisecond))
	supervisor.Add(module)
	supervisor.Start(context.Background())
	defer supervisor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for moduleStatus(t, supervisor, "one-shot").State != ModuleStopped {
		if time.Now().After(deadline) {
			t.Fatalf("module never reached stopped state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if runs := module.runs.Load(); runs != 1 {
		t.Fatalf("cleanly finished module was restarted, runs=%d", runs)
	}
}
