// Package registry tracks named goproc.Process instances so an HTTP
// layer (or any other caller) can look one up, list them, or stop one by
// name instead of holding its own reference. It intentionally carries no
// restart-scheduling or capacity-gating policy: Process.Clone/Restart is
// the only lifecycle primitive it builds on.
package registry

import (
	"context"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/runprocx/goproc"
)

// completionPublisher is satisfied by *redisbus.Bus. Kept as an interface
// here (rather than importing redisbus directly) so registry has no
// compile-time dependency on redis: a nil completionPublisher, like a nil
// *redisbus.Bus, simply means no events go out.
type completionPublisher interface {
	PublishCompletion(ctx context.Context, name string, p *goproc.Process) error
}

// pollInterval is how often a watched process is checked for termination.
// Coarse enough not to contend with the process's own cooperative status
// polling, fine enough that completion events aren't noticeably delayed.
const pollInterval = 50 * time.Millisecond

// Registry is a concurrency-safe name → Process map. Unlike the Process
// engine itself, which is single-threaded cooperative, the registry is
// expected to be read and written from multiple HTTP request goroutines,
// so it does hold a mutex.
type Registry struct {
	mu        sync.RWMutex
	processes map[string]*goproc.Process
	logger    *zap.Logger
	bus       completionPublisher
}

// New constructs an empty Registry. A nil logger is replaced with a no-op
// one.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		processes: make(map[string]*goproc.Process),
		logger:    logger,
	}
}

// SetBus wires a completion publisher (typically *redisbus.Bus). A nil bus
// (the default) disables completion events entirely; a *redisbus.Bus with
// a nil redis client is also safe to pass, since Bus.PublishCompletion is
// itself a no-op in that case.
func (r *Registry) SetBus(bus completionPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
}

// Put registers p under name, replacing (without stopping) any previous
// entry. Callers are responsible for stopping the prior instance first if
// that's the desired behavior. If a completion publisher is wired (see
// SetBus), Put also starts a watcher goroutine that publishes a completion
// event the moment p terminates, whether that happens on its own or via
// Stop/StopAll.
func (r *Registry) Put(name string, p *goproc.Process) {
	r.mu.Lock()
	r.processes[name] = p
	bus := r.bus
	r.mu.Unlock()

	if bus != nil {
		go r.watchCompletion(name, p, bus)
	}
}

// watchCompletion polls p's status (read-only, so it never touches the
// cooperative Start/Wait/Stop loop) until it terminates, then publishes
// once. It exits without publishing if name no longer maps to p, so a
// subsequent Put under the same name doesn't produce a stale event.
func (r *Registry) watchCompletion(name string, p *goproc.Process, bus completionPublisher) {
	for !p.IsTerminated() {
		time.Sleep(pollInterval)
	}
	if r.Get(name) != p {
		return
	}
	if err := bus.PublishCompletion(context.Background(), name, p); err != nil {
		r.logger.Warn("publish completion event failed", zap.String("name", name), zap.Error(err))
	}
}

// Get returns the Process registered under name, or nil if none.
func (r *Registry) Get(name string) *goproc.Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processes[name]
}

// Delete removes name from the registry without touching the process
// itself.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, name)
}

// Names returns a snapshot of all registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processes))
	for name := range r.processes {
		names = append(names, name)
	}
	return names
}

// Stop stops the named process with the given grace period, delegating to
// Process.Stop's SIGTERM → grace → SIGKILL escalation.
func (r *Registry) Stop(name string, gracePeriod float64) (int, error) {
	p := r.Get(name)
	if p == nil {
		return -1, goprocErrNotFound(name)
	}
	code, err := p.Stop(gracePeriod, syscall.SIGKILL)
	if err != nil {
		r.logger.Warn("stop failed", zap.String("name", name), zap.Error(err))
	}
	return code, err
}

// StopAll stops every registered process, logging (not failing) on
// individual errors.
func (r *Registry) StopAll(gracePeriod float64) {
	for _, name := range r.Names() {
		if _, err := r.Stop(name, gracePeriod); err != nil {
			r.logger.Warn("stop during shutdown sweep failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func goprocErrNotFound(name string) error {
	return &notFoundError{name: name}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "registry: no process named " + e.name }
