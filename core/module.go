package agent

import (
	"context"
	"sync"
)

// ModuleState is a module's position in the supervised lifecycle.
type ModuleState string

const (
	// ModuleCreated means the module is registered but not yet started.
	ModuleCreated ModuleState = "created"
	// ModuleRunning means the module's Run loop is active.
	ModuleRunning ModuleState = "running"
	// ModuleStopping means shutdown was requested and the module is draining.
	ModuleStopping ModuleState = "stopping"
	// ModuleStopped means the module exited cleanly.
	ModuleStopped ModuleState = "stopped"
	// ModuleFailed means the module exhausted its restart budget.
	ModuleFailed ModuleState = "failed"
)

// Module is a long-running agent component. Run blocks until the context is
// cancelled or the module hits an unrecoverable error; the supervisor owns
// restarts.
type Module interface {
	Name() string
	Run(ctx context.Context) error
}

// ModuleStatus is a point-in-time snapshot of one supervised module.
type ModuleStatus struct {
	Name     string
	State    ModuleState
	Restarts int
	// Err is the most recent Run error, kept across restarts for reporting.
	Err error
}

type moduleHandle struct {
	module Module

	mu       sync.Mutex
	state    ModuleState
	restarts int
	lastErr  error
}

func newModuleHandle(module Module) *moduleHandle {
	return &moduleHandle{module: module, state: ModuleCreated}
}

func (h *moduleHandle) setState(state ModuleState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

func (h *moduleHandle) recordFailure(err error) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErr = err
	h.restarts++
	return h.restarts
}

func (h *moduleHandle) status() ModuleStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ModuleStatus{
		Name:     h.module.Name(),
		State:    h.state,
		Restarts: h.restarts,
		Err:      h.lastErr,
	}
}
