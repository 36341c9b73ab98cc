// Package goproc is a cross-platform subprocess execution engine: it
// launches external programs, feeds them input, concurrently drains their
// standard output and standard error, enforces runtime and idle timeouts,
// propagates signals, and reports rich termination information back to
// the caller. See doc.go for the package-level overview.
package goproc

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/runprocx/goproc/internal/diag"
	"github.com/runprocx/goproc/internal/pipe"
)

// Process is one external command invocation. Its status moves
// monotonically ready → started → terminated (invariant 1); restarting
// never reuses a terminated instance (see Clone/Restart).
type Process struct {
	commandLine string
	cwd         string
	env         map[string]string
	inheritEnv  bool
	input       Input
	timeout     *float64
	idleTimeout *float64
	options     Options

	tty            bool
	pty            bool
	outputDisabled bool
	sigchildCompat bool

	status             Status
	exitCode           *int
	fallbackExitCode   *int
	processInformation ProcessInformation
	reapedInfo         *ProcessInformation

	stdoutBuffer                 []byte
	stderrBuffer                 []byte
	incrementalOutputOffset      int
	incrementalErrorOutputOffset int

	startTime      float64
	lastOutputTime float64

	latestSignal int

	backend pipe.Backend
	cmd     *exec.Cmd
	pid     int

	userCallback func(OutputType, []byte)

	logger *zap.Logger
}

// New constructs a Process in StatusReady. input accepts nil, an
// io.Reader, a []byte, a string, or a scalar (coerced via fmt.Sprint); any
// other type fails with KindInvalidArgument.
func New(commandLine, cwd string, env map[string]string, input any, timeout *float64) (*Process, error) {
	in, err := validateInput("New", input)
	if err != nil {
		return nil, err
	}
	if timeout != nil && *timeout < 0 {
		return nil, newInvalidArgument("timeout must be >= 0")
	}
	return &Process{
		commandLine:  commandLine,
		cwd:          cwd,
		env:          copyEnv(env),
		inheritEnv:   true,
		input:        in,
		timeout:      timeout,
		status:       StatusReady,
		latestSignal: -1,
		logger:       zap.NewNop(),
	}, nil
}

// SetLogger attaches a zap logger used for non-fatal diagnostics: pipe
// read/write faults are never returned to the caller and are logged here
// at Warn, unless Options.SuppressErrors is set, in which case they are
// not logged either. A nil logger resets to a no-op logger.
func (p *Process) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	p.logger = l
}

func (p *Process) requireNotStarted(op string) error {
	if p.status == StatusStarted {
		return newLogicError("cannot %s while the process is running", op)
	}
	return nil
}

// SetWorkingDirectory changes cwd. Fails KindLogic while running
// (invariant 7).
func (p *Process) SetWorkingDirectory(cwd string) error {
	if err := p.requireNotStarted("change the working directory"); err != nil {
		return err
	}
	p.cwd = cwd
	return nil
}

// SetEnv replaces the environment map. inherit controls whether it's
// unioned with the ambient process environment at spawn time.
func (p *Process) SetEnv(env map[string]string, inherit bool) error {
	if err := p.requireNotStarted("change the environment"); err != nil {
		return err
	}
	p.env = copyEnv(env)
	p.inheritEnv = inherit
	return nil
}

// SetInput replaces the input source. Fails KindLogic while running
// (invariant 7).
func (p *Process) SetInput(v any) error {
	if err := p.requireNotStarted("change the input"); err != nil {
		return err
	}
	in, err := validateInput("SetInput", v)
	if err != nil {
		return err
	}
	p.input = in
	return nil
}

// SetTimeout sets the wall-clock limit in seconds, or nil to clear it.
func (p *Process) SetTimeout(seconds *float64) error {
	if seconds != nil && *seconds < 0 {
		return newInvalidArgument("timeout must be >= 0")
	}
	p.timeout = seconds
	return nil
}

// SetIdleTimeout sets the no-output timeout in seconds, or nil to clear
// it. Mutually exclusive with outputDisabled (invariant 6).
func (p *Process) SetIdleTimeout(seconds *float64) error {
	if seconds != nil && *seconds < 0 {
		return newInvalidArgument("idle timeout must be >= 0")
	}
	if seconds != nil && p.outputDisabled {
		return newLogicError("idle timeout can't be set while output is disabled")
	}
	p.idleTimeout = seconds
	return nil
}

// SetTTY requests the child be attached to the controlling terminal.
// Fails KindRuntime when TTY mode is requested on Windows.
func (p *Process) SetTTY(tty bool) error {
	if err := p.requireNotStarted("change tty mode"); err != nil {
		return err
	}
	if tty && runtime.GOOS == "windows" {
		return newRuntimeError(nil, "TTY mode is not supported on Windows")
	}
	p.tty = tty
	return nil
}

// SetPTY requests a pseudo-terminal for the child, falling back to the
// plain pipe backend at Start time if pty allocation is unsupported.
func (p *Process) SetPTY(pty bool) error {
	if err := p.requireNotStarted("change pty mode"); err != nil {
		return err
	}
	p.pty = pty
	return nil
}

// SetSigchildCompat enables the fourth-descriptor exit-code echo for
// environments where waitpid cannot be trusted to report the real exit
// status (containerized/restricted-PID namespaces).
func (p *Process) SetSigchildCompat(enabled bool) error {
	if err := p.requireNotStarted("change sigchild compatibility mode"); err != nil {
		return err
	}
	p.sigchildCompat = enabled
	return nil
}

// DisableOutput stops buffering stdout/stderr. Fails KindRuntime while
// running, KindLogic if an idle timeout is set (invariant 6).
func (p *Process) DisableOutput() error {
	if p.status == StatusStarted {
		return newRuntimeError(nil, "cannot disable output while the process is running")
	}
	if p.idleTimeout != nil {
		return newLogicError("output can't be disabled while an idle timeout is set")
	}
	p.outputDisabled = true
	return nil
}

// EnableOutput resumes buffering stdout/stderr. Fails KindRuntime while
// running.
func (p *Process) EnableOutput() error {
	if p.status == StatusStarted {
		return newRuntimeError(nil, "cannot enable output while the process is running")
	}
	p.outputDisabled = false
	return nil
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (p *Process) resetRuntimeState() {
	p.exitCode = nil
	p.fallbackExitCode = nil
	p.processInformation = ProcessInformation{}
	p.reapedInfo = nil
	p.stdoutBuffer = nil
	p.stderrBuffer = nil
	p.incrementalOutputOffset = 0
	p.incrementalErrorOutputOffset = 0
	p.latestSignal = -1
	p.backend = nil
	p.cmd = nil
	p.pid = 0
}

// Start launches the child. Fails KindRuntime if already running,
// KindLogic if outputDisabled and callback is non-nil.
func (p *Process) Start(callback func(OutputType, []byte)) error {
	if p.status == StatusStarted {
		return newRuntimeError(nil, "process is already running")
	}
	if p.outputDisabled && callback != nil {
		return newLogicError("a callback cannot be used with output disabled")
	}

	p.resetRuntimeState()
	p.startTime = nowSeconds()
	p.lastOutputTime = p.startTime
	p.userCallback = callback

	if err := p.spawn(); err != nil {
		return err
	}
	p.status = StatusStarted

	if p.tty {
		return nil
	}
	p.refreshStatus()
	return p.CheckTimeout()
}

func (p *Process) spawn() error {
	mode := pipe.Mode{OutputDisabled: p.outputDisabled, TTY: p.tty, PTY: p.pty, Sigchild: p.sigchildCompat}

	var reader io.Reader
	var data []byte
	switch {
	case p.input.kind == inputStream:
		reader = p.input.reader
		// A reader without a pollable fd is drained up front and handed to
		// the backend as plain bytes.
		if _, ok := reader.(interface{ Fd() uintptr }); !ok {
			b, err := io.ReadAll(reader)
			if err != nil {
				return newRuntimeError(err, "unable to read process input")
			}
			reader, data = nil, b
		}
	case p.input.kind == inputBytes:
		data = p.input.data
	}

	backend, err := pipe.New(mode, reader, data)
	if err != nil {
		return newRuntimeError(err, "unable to allocate process descriptors")
	}

	// Sigchild compatibility rewrites the command line to echo its exit
	// code over the fourth descriptor, which requires a shell to run the
	// wrapper regardless of the caller's bypassShell preference.
	commandLine := p.commandLine
	bypassShell := p.options.bypassShell(defaultBypassShell)
	if p.sigchildCompat {
		commandLine = wrapSigchildCommand(commandLine)
		bypassShell = false
	}

	name, args := spawnArgv(commandLine, bypassShell)
	if name == "" {
		backend.Close()
		return newInvalidArgument("command line is empty")
	}

	cmd := exec.Command(name, args...)
	if p.cwd != "" {
		cmd.Dir = p.cwd
	}
	cmd.Env = buildEnv(p.env, p.inheritEnv)

	files := backend.ChildFiles()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = files[STDIN], files[STDOUT], files[STDERR]
	if extra := backend.ChildExtraFile(); extra != nil {
		cmd.ExtraFiles = []*os.File{extra}
	}
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		backend.Close()
		return newRuntimeError(err, "Unable to launch a new process.")
	}
	backend.ReleaseChildFiles()

	p.backend = backend
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	return nil
}

// queryStatus returns the latest OS-reported status, caching the final
// snapshot once the child has been reaped: POSIX's wait4(WNOHANG) can only
// observe a given zombie's exit status once, so a second call after reap
// would otherwise report ECHILD and lose the real exit code.
func (p *Process) queryStatus() (ProcessInformation, bool) {
	if p.reapedInfo != nil {
		return *p.reapedInfo, true
	}
	info, exited, err := pollStatus(p.pid)
	if err != nil {
		return p.processInformation, false
	}
	p.processInformation = info
	if exited {
		p.reapedInfo = &info
	}
	return info, exited
}

func (p *Process) refreshStatus() {
	if p.pid == 0 {
		return
	}
	if _, exited := p.queryStatus(); exited {
		p.finish()
	}
}

// finish releases the backend, reaps the child, and resolves the final
// exit code via the precedence chain in resolveExitCode.
func (p *Process) finish() {
	if p.status == StatusTerminated {
		return
	}
	if p.backend != nil {
		p.readPipes(false, true)
		p.backend.Close()
	}

	info, _ := p.queryStatus()
	code := resolveExitCode(info.ExitCode, p.exitCode, p.fallbackExitCode, info.Signaled, info.TermSig)
	p.exitCode = &code
	p.processInformation = info
	p.status = StatusTerminated
}

func (p *Process) safeExitCode() int {
	if p.exitCode != nil {
		return *p.exitCode
	}
	return -1
}

// Wait blocks until the child terminates, polling at TimeoutPrecision
// granularity and routing output to callback (if non-nil, replacing any
// callback passed to Start). Fails KindLogic if the process was never
// started.
func (p *Process) Wait(callback func(OutputType, []byte)) (int, error) {
	if p.status == StatusReady {
		return 0, newLogicError("process must be started before calling wait")
	}
	if callback != nil {
		p.userCallback = callback
	}

	for p.status == StatusStarted {
		if err := p.CheckTimeout(); err != nil {
			return p.safeExitCode(), err
		}
		running := p.isRunningNow()
		closing := !running
		p.readPipes(true, closing)
		if closing {
			p.refreshStatus()
		}
	}

	for isProcessRunning(p.pid) {
		time.Sleep(time.Millisecond)
	}

	if p.processInformation.Signaled && p.processInformation.TermSig != p.latestSignal {
		return p.safeExitCode(), newRuntimeError(nil, "the process has been signaled with signal %d", p.processInformation.TermSig)
	}

	return p.safeExitCode(), nil
}

// Run starts and waits for the process, returning its exit code.
func (p *Process) Run(callback func(OutputType, []byte)) (int, error) {
	if err := p.Start(callback); err != nil {
		return -1, err
	}
	return p.Wait(nil)
}

// MustRun is Run, additionally failing KindFailed on a non-zero exit.
func (p *Process) MustRun(callback func(OutputType, []byte)) (int, error) {
	code, err := p.Run(callback)
	if err != nil {
		return code, err
	}
	if code != 0 {
		return code, newFailedError(p)
	}
	return code, nil
}

// Stop escalates SIGTERM (or the platform equivalent) to SIGKILL, waiting
// up to gracePeriod seconds between the two, and returns the resolved exit
// code. A zero escalationSignal defaults to SIGKILL.
func (p *Process) Stop(gracePeriod float64, escalationSignal syscall.Signal) (int, error) {
	if p.status != StatusStarted {
		return p.safeExitCode(), nil
	}

	if p.isRunningNow() {
		maybeForceKillTree(p.pid)

		_ = sendSignal(p.pid, syscall.SIGTERM)
		p.latestSignal = int(syscall.SIGTERM)

		deadline := nowSeconds() + gracePeriod
		for p.isRunningNow() && nowSeconds() < deadline {
			time.Sleep(time.Millisecond)
		}

		if p.isRunningNow() {
			esc := escalationSignal
			if esc == 0 {
				esc = syscall.SIGKILL
			}
			_ = sendSignal(p.pid, esc)
			p.latestSignal = int(esc)
			for p.isRunningNow() {
				time.Sleep(time.Millisecond)
			}
		}
	}

	p.refreshStatus()
	if p.status != StatusTerminated {
		p.finish()
	}
	return p.safeExitCode(), nil
}

// Signal sends sig to the child, failing on error.
func (p *Process) Signal(sig syscall.Signal) error {
	return p.doSignal(sig, true)
}

// TrySignal sends sig to the child, silently ignoring failures
// (throwOnError=false).
func (p *Process) TrySignal(sig syscall.Signal) {
	_ = p.doSignal(sig, false)
}

func (p *Process) doSignal(sig syscall.Signal, throwOnError bool) error {
	if !p.isRunningNow() {
		if throwOnError {
			return newLogicError("cannot send signal on a non-running process")
		}
		return nil
	}
	if p.sigchildCompat {
		if throwOnError {
			return newRuntimeError(nil, "cannot send signal: process pid is unknown under sigchild compatibility")
		}
		return nil
	}
	if err := sendSignal(p.pid, sig); err != nil {
		if throwOnError {
			return newRuntimeError(err, "error sending signal %d", sig)
		}
		return nil
	}
	p.latestSignal = int(sig)
	return nil
}

// Clone deep-resets all runtime state back to StatusReady while keeping
// configuration fields (command, cwd, env, timeouts, modes). The receiver
// is never mutated.
func (p *Process) Clone() *Process {
	clone := *p
	clone.status = StatusReady
	clone.exitCode = nil
	clone.fallbackExitCode = nil
	clone.processInformation = ProcessInformation{}
	clone.reapedInfo = nil
	clone.stdoutBuffer = nil
	clone.stderrBuffer = nil
	clone.incrementalOutputOffset = 0
	clone.incrementalErrorOutputOffset = 0
	clone.startTime = 0
	clone.lastOutputTime = 0
	clone.latestSignal = -1
	clone.backend = nil
	clone.cmd = nil
	clone.pid = 0
	clone.userCallback = nil
	clone.env = copyEnv(p.env)
	return &clone
}

// Restart clones the process and starts the clone, leaving the receiver
// untouched.
func (p *Process) Restart(callback func(OutputType, []byte)) (*Process, error) {
	if p.status == StatusStarted {
		return nil, newRuntimeError(nil, "cannot restart a running process, stop it first")
	}
	clone := p.Clone()
	if err := clone.Start(callback); err != nil {
		return nil, err
	}
	return clone, nil
}

func (p *Process) pollOutput() {
	if p.status != StatusStarted {
		return
	}
	running := p.isRunningNow()
	closing := !running
	p.readPipes(false, closing)
	if closing {
		p.refreshStatus()
	}
}

// GetOutput returns the accumulated stdout buffer, first performing one
// non-blocking pipe drain. Fails KindLogic if output is disabled or the
// process was never started.
func (p *Process) GetOutput() ([]byte, error) {
	if p.outputDisabled {
		return nil, newLogicError("output has been disabled")
	}
	if p.status == StatusReady {
		return nil, newLogicError("process must be started before accessing output")
	}
	p.pollOutput()
	return append([]byte(nil), p.stdoutBuffer...), nil
}

// GetErrorOutput is GetOutput's stderr counterpart.
func (p *Process) GetErrorOutput() ([]byte, error) {
	if p.outputDisabled {
		return nil, newLogicError("output has been disabled")
	}
	if p.status == StatusReady {
		return nil, newLogicError("process must be started before accessing output")
	}
	p.pollOutput()
	return append([]byte(nil), p.stderrBuffer...), nil
}

// GetIncrementalOutput returns only the stdout bytes produced since the
// last call to GetIncrementalOutput (GetOutput leaves the cursor
// untouched), then advances the cursor to the current buffer length.
func (p *Process) GetIncrementalOutput() ([]byte, error) {
	out, err := p.GetOutput()
	if err != nil {
		return nil, err
	}
	if p.incrementalOutputOffset > len(out) {
		p.incrementalOutputOffset = len(out)
	}
	delta := out[p.incrementalOutputOffset:]
	p.incrementalOutputOffset = len(out)
	return append([]byte(nil), delta...), nil
}

// GetIncrementalErrorOutput is GetIncrementalOutput's stderr counterpart.
func (p *Process) GetIncrementalErrorOutput() ([]byte, error) {
	out, err := p.GetErrorOutput()
	if err != nil {
		return nil, err
	}
	if p.incrementalErrorOutputOffset > len(out) {
		p.incrementalErrorOutputOffset = len(out)
	}
	delta := out[p.incrementalErrorOutputOffset:]
	p.incrementalErrorOutputOffset = len(out)
	return append([]byte(nil), delta...), nil
}

// ClearOutput resets the stdout buffer and its cursor atomically
// (invariant 5).
func (p *Process) ClearOutput() {
	p.stdoutBuffer = nil
	p.incrementalOutputOffset = 0
}

// ClearErrorOutput is ClearOutput's stderr counterpart.
func (p *Process) ClearErrorOutput() {
	p.stderrBuffer = nil
	p.incrementalErrorOutputOffset = 0
}

// CheckTimeout enforces the two independent clocks, stopping the child and
// returning KindTimedOut if either has elapsed.
func (p *Process) CheckTimeout() error {
	if p.status != StatusStarted {
		return nil
	}
	now := nowSeconds()
	if p.timeout != nil && now-p.startTime > *p.timeout {
		p.Stop(0, 0)
		return newTimedOutError(p, TimeoutGeneral)
	}
	if p.idleTimeout != nil && now-p.lastOutputTime > *p.idleTimeout {
		p.Stop(0, 0)
		return newTimedOutError(p, TimeoutIdle)
	}
	return nil
}

// readPipes drives one step of the Pipe Backend and routes the result:
// stream 3 feeds fallbackExitCode, streams 1/2 append to their buffers,
// stamp lastOutputTime, and forward to the user callback.
func (p *Process) readPipes(blocking, closing bool) {
	if p.backend == nil {
		return
	}
	chunks, err := p.backend.ReadAndWrite(blocking, closing)
	if err != nil && !p.options.SuppressErrors {
		p.logger.Warn("pipe read/write failed", zap.Error(err), zap.String("detail", diag.DumpErrChain(err)))
	}

	for id, data := range chunks {
		if len(data) == 0 {
			continue
		}
		switch id {
		case sigchildStream:
			if n, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
				p.fallbackExitCode = &n
			}
		case STDOUT:
			p.stdoutBuffer = append(p.stdoutBuffer, data...)
			p.lastOutputTime = nowSeconds()
			if p.userCallback != nil {
				p.userCallback(OUT, data)
			}
		case STDERR:
			p.stderrBuffer = append(p.stderrBuffer, data...)
			p.lastOutputTime = nowSeconds()
			if p.userCallback != nil {
				p.userCallback(ERR, data)
			}
		}
	}
}

// GetExitCode returns the resolved exit code, or nil before termination
// (invariant 2).
func (p *Process) GetExitCode() *int { return p.exitCode }

// GetExitCodeText returns the human-readable label for the current exit
// code, or "" before termination.
func (p *Process) GetExitCodeText() string {
	if p.exitCode == nil {
		return ""
	}
	return GetExitCodeText(*p.exitCode)
}

// IsSuccessful reports whether the process terminated with exit code 0.
func (p *Process) IsSuccessful() bool {
	return p.exitCode != nil && *p.exitCode == 0
}

// Pid returns the child's process ID, or 0 before Start.
func (p *Process) Pid() int { return p.pid }

// CommandLine returns the shell-ready command string this Process runs.
func (p *Process) CommandLine() string { return p.commandLine }

// GetStatus returns the current lifecycle state, first refreshing it from
// the OS if the process is (or was believed to be) running.
func (p *Process) GetStatus() Status {
	if p.status == StatusStarted {
		p.refreshStatus()
	}
	return p.status
}

// IsStarted reports whether Start has ever been called successfully.
func (p *Process) IsStarted() bool { return p.status != StatusReady }

// IsRunning reports whether the process is currently started (after
// refreshing status).
func (p *Process) IsRunning() bool { return p.GetStatus() == StatusStarted }

// IsTerminated reports whether the process has reached its terminal state.
func (p *Process) IsTerminated() bool { return p.GetStatus() == StatusTerminated }

// GetProcessInformation returns the last OS-reported status snapshot.
func (p *Process) GetProcessInformation() ProcessInformation { return p.processInformation }
