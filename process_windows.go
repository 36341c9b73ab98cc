//go:build windows

package goproc

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// defaultBypassShell is true on Windows: the Windows Pipe Backend already
// redirects output by handing exec.Cmd already-open *os.File temp-file
// handles directly (see internal/pipe/pipe_windows.go), so there's no need
// for a "cmd /V:ON /E:ON /C (…) 1>out 2>err" shell wrap by default.
const defaultBypassShell = true

// spawnArgv renders commandLine into argv. bypassShell=true (the default)
// execs the command directly; false wraps it in cmd.exe /C for callers
// that rely on shell builtins or operators in their command line.
func spawnArgv(commandLine string, bypassShell bool) (string, []string) {
	if bypassShell {
		fields := strings.Fields(commandLine)
		if len(fields) == 0 {
			return "", nil
		}
		return fields[0], fields[1:]
	}
	return "cmd.exe", []string{"/V:ON", "/E:ON", "/C", commandLine}
}

// wrapSigchildCommand is a no-op on Windows: GetExitCodeProcess is always
// reliable here, so there's no fallback channel to echo an exit code over
// (the Windows Pipe Backend's ChildExtraFile always returns nil).
func wrapSigchildCommand(commandLine string) string { return commandLine }

// maybeForceKillTree force-kills pid's whole process tree via taskkill.
// Windows has no process-group signal equivalent, so the tree is killed up
// front and the subsequent "signal" escalation degrades to TerminateProcess.
func maybeForceKillTree(pid int) {
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// isRunningNow determines liveness purely from an OS status poll: Windows
// offers no pollable "pipe still open" signal equivalent to POSIX's pipe
// descriptors (see internal/pipe/pipe_windows.go's AreOpen doc comment), so
// status is the sole source of truth here.
func (p *Process) isRunningNow() bool {
	_, exited := p.queryStatus()
	return !exited
}

// configureSysProcAttr asks the child to open its own console/process
// group (CREATE_NEW_PROCESS_GROUP) so a later GenerateConsoleCtrlEvent can
// target it without also signaling this process.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// pollStatus performs a non-blocking WaitForSingleObject peek at the
// handle for pid. Signaled never becomes true here since Windows has no
// equivalent of death-by-signal, only TerminateProcess exit codes.
func pollStatus(pid int) (info ProcessInformation, exited bool, err error) {
	h, oerr := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE, false, uint32(pid))
	if oerr != nil {
		return ProcessInformation{PID: pid, ExitCode: -1}, true, nil
	}
	defer windows.CloseHandle(h)

	event, werr := windows.WaitForSingleObject(h, 0)
	if werr != nil {
		return ProcessInformation{}, false, werr
	}
	if event == uint32(windows.WAIT_TIMEOUT) {
		return ProcessInformation{Running: true, PID: pid, ExitCode: -1}, false, nil
	}

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return ProcessInformation{PID: pid, ExitCode: -1}, true, nil
	}
	return ProcessInformation{PID: pid, ExitCode: int(int32(code))}, true, nil
}

// sendSignal approximates POSIX signal delivery on Windows: CTRL_BREAK for
// the interrupt-style signals, TerminateProcess for anything stronger. This
// is a deliberate narrowing, not full parity with POSIX signal semantics.
func sendSignal(pid int, sig syscall.Signal) error {
	if sig == syscall.SIGINT {
		return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid))
	}
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.TerminateProcess(h, 1)
}

func isProcessRunning(pid int) bool {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	event, werr := windows.WaitForSingleObject(h, 0)
	return werr == nil && event == uint32(windows.WAIT_TIMEOUT)
}
