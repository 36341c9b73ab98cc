package goproc

import (
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/runprocx/goproc/internal/diag"
)

func skipUnlessUnixShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scenario uses /bin/sh, posix-only")
	}
}

// dumpState logs a go-spew rendering of p's ProcessInformation, for
// post-mortem on an unexpected exit code without re-running the scenario
// under a debugger.
func dumpState(t *testing.T, p *Process) {
	t.Helper()
	t.Logf("process state:\n%s", diag.Dump(p.GetProcessInformation()))
}

func f(v float64) *float64 { return &v }

// S1: echo hello
func TestScenarioEcho(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("echo hello", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	code, err := p.Run(nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 0 {
		dumpState(t, p)
		t.Fatalf("exit code = %d, want 0", code)
	}
	out, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}
	errOut, err := p.GetErrorOutput()
	if err != nil {
		t.Fatal(err)
	}
	if len(errOut) != 0 {
		t.Errorf("expected empty stderr, got %q", errOut)
	}
	if !p.IsTerminated() {
		t.Errorf("expected terminated status")
	}
}

// S2: stderr + non-zero exit
func TestScenarioStderrAndFailure(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New(`sh -c 'echo oops 1>&2; exit 1'`, "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	code, _ := p.Run(nil)
	if code != 1 {
		dumpState(t, p)
		t.Fatalf("exit code = %d, want 1", code)
	}
	if p.IsSuccessful() {
		t.Errorf("expected IsSuccessful() == false")
	}
	errOut, err := p.GetErrorOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(errOut) != "oops\n" {
		t.Errorf("stderr = %q, want %q", errOut, "oops\n")
	}
}

// S3: input echoed back via cat
func TestScenarioInputEcho(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("cat", "", nil, "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	code, err := p.Run(nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	out, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ping" {
		t.Errorf("output = %q, want %q", out, "ping")
	}
}

// S4: large output, no deadlock
func TestScenarioLargeOutput(t *testing.T) {
	skipUnlessUnixShell(t)
	const size = 2 * 1024 * 1024
	p, err := New("head -c 2097152 /dev/zero", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	code, err := p.Run(nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	out, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != size {
		t.Errorf("captured %d bytes, want %d", len(out), size)
	}
}

// S5: wall-clock timeout
func TestScenarioTimeout(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("sleep 10", "", nil, nil, f(0.3))
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = p.Run(nil)
	elapsed := time.Since(start).Seconds()

	if !IsTimedOut(err, TimeoutGeneral) {
		t.Fatalf("expected ProcessTimedOut(general), got %v", err)
	}
	if elapsed > 0.3+2*TimeoutPrecision {
		t.Errorf("took %.2fs, want within timeout+2*precision", elapsed)
	}
	if p.GetExitCode() == nil {
		t.Errorf("expected a resolved exit code after timeout")
	}

	time.Sleep(time.Second)
	if isProcessRunning(p.Pid()) {
		t.Errorf("child still running 1s after timeout stop")
	}
}

// S6: idle timeout
func TestScenarioIdleTimeout(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New(`sh -c 'echo hi; sleep 10'`, "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetIdleTimeout(f(0.3)); err != nil {
		t.Fatal(err)
	}
	_, err = p.Run(nil)
	if !IsTimedOut(err, TimeoutIdle) {
		t.Fatalf("expected ProcessTimedOut(idle), got %v", err)
	}
}

// S7: signal. SIGTERM is delivered outside Process.Signal, so it differs
// from the last signal the caller requested and Wait must raise.
func TestScenarioSignal(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("sleep 10", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(nil); err != nil {
		t.Fatal(err)
	}
	if err := sendSignal(p.Pid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	_, err = p.Wait(nil)
	if err == nil {
		t.Fatal("expected wait to raise a signaled-mismatch error")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != KindRuntime {
		t.Errorf("expected KindRuntime, got %v", err)
	}
}

// S8: mustRun failure
func TestScenarioMustRunFails(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("false", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.MustRun(nil)
	if err == nil {
		t.Fatal("expected MustRun to fail")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != KindFailed {
		t.Errorf("expected KindFailed, got %v", err)
	}
	if p.GetExitCode() == nil || *p.GetExitCode() != 1 {
		t.Errorf("expected exit code 1, got %v", p.GetExitCode())
	}
}

// Invariant: concatenation of OUT callbacks equals GetOutput()
func TestInvariantCallbackMatchesOutput(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New(`sh -c 'echo one; echo two'`, "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var collected []byte
	_, err = p.Run(func(kind OutputType, chunk []byte) {
		if kind == OUT {
			collected = append(collected, chunk...)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(collected) != string(out) {
		t.Errorf("callback-collected output %q != GetOutput() %q", collected, out)
	}
}

// Invariant: outputDisabled and idleTimeout are mutually exclusive
func TestInvariantOutputDisabledExcludesIdleTimeout(t *testing.T) {
	p, err := New("true", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetIdleTimeout(f(1)); err != nil {
		t.Fatal(err)
	}
	if err := p.DisableOutput(); err == nil {
		t.Fatal("expected DisableOutput to fail while idle timeout is set")
	}

	p2, err := New("true", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p2.DisableOutput(); err != nil {
		t.Fatal(err)
	}
	if err := p2.SetIdleTimeout(f(1)); err == nil {
		t.Fatal("expected SetIdleTimeout to fail while output is disabled")
	}
}

// Invariant: start on an already-running process fails Runtime
func TestInvariantDoubleStartFails(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("sleep 1", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(nil); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(0, 0)

	err = p.Start(nil)
	var e *Error
	if !asError(err, &e) || e.Kind != KindRuntime {
		t.Errorf("expected KindRuntime on double start, got %v", err)
	}
}

// Clone semantics: Restart doesn't mutate the original
func TestCloneDoesNotMutateOriginal(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New("echo hello", "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(nil); err != nil {
		t.Fatal(err)
	}
	originalOut, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	originalCode := p.GetExitCode()

	clone, err := p.Restart(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := clone.Wait(nil); err != nil {
		t.Fatal(err)
	}

	if p.GetExitCode() == nil || originalCode == nil || *p.GetExitCode() != *originalCode {
		t.Errorf("original exit code changed after restart")
	}
	stillOut, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(stillOut) != string(originalOut) {
		t.Errorf("original buffer changed after restart: %q != %q", stillOut, originalOut)
	}
	if clone == p {
		t.Errorf("restart should operate on a distinct clone")
	}
}

func TestGetIncrementalOutputConcatenatesToFullOutput(t *testing.T) {
	skipUnlessUnixShell(t)
	p, err := New(`sh -c 'echo one; sleep 0.1; echo two'`, "", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(nil); err != nil {
		t.Fatal(err)
	}
	var assembled []byte
	for p.IsRunning() {
		chunk, err := p.GetIncrementalOutput()
		if err != nil {
			t.Fatal(err)
		}
		assembled = append(assembled, chunk...)
		time.Sleep(20 * time.Millisecond)
	}
	p.Wait(nil)
	last, err := p.GetIncrementalOutput()
	if err != nil {
		t.Fatal(err)
	}
	assembled = append(assembled, last...)

	full, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if string(assembled) != string(full) {
		t.Errorf("incremental reads concatenated = %q, want %q", assembled, full)
	}
}
