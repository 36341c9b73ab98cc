//go:build unix

package goproc

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// defaultBypassShell is false on POSIX: commands are, by default, handed to
// a shell so the caller's command line can use shell features (pipes,
// globbing); explicit opt-in is required to exec argv[0] directly.
const defaultBypassShell = false

// spawnArgv renders commandLine into the argv the platform spawn
// primitive receives. When bypassShell is false (the default) it's wrapped
// in /bin/sh -c. When true, the command line is split on whitespace and
// executed directly — the Argument Escaper is expected to have already
// produced shell-word-safe tokens in this mode.
func spawnArgv(commandLine string, bypassShell bool) (string, []string) {
	if bypassShell {
		fields := strings.Fields(commandLine)
		if len(fields) == 0 {
			return "", nil
		}
		return fields[0], fields[1:]
	}
	return "/bin/sh", []string{"-c", commandLine}
}

// wrapSigchildCommand rewrites commandLine so its exit code survives even
// if waitpid can't report it: the subshell's own fd 3 is redirected to
// /dev/null (isolating the real fd 3 pipe from anything the command itself
// does with descriptor 3), then the outer shell echoes the captured exit
// code to the real fd 3 and exits with it.
func wrapSigchildCommand(commandLine string) string {
	return fmt.Sprintf("(%s) 3>/dev/null; code=$?; echo $code >&3; exit $code", commandLine)
}

// maybeForceKillTree is a no-op on POSIX: Stop's SIGTERM/SIGKILL
// escalation already targets the whole process group via sendSignal's
// negative pid.
func maybeForceKillTree(pid int) {}

// isRunningNow determines liveness purely from an OS status poll, matching
// the Windows primitive in process_windows.go. Any output still buffered in the pipes at
// the moment wait4 observes the exit is not lost: finish() always performs
// one last unconditional full drain (readPipes(false, true)) before the
// backend is closed.
func (p *Process) isRunningNow() bool {
	_, exited := p.queryStatus()
	return !exited
}

// configureSysProcAttr sets the platform process-group and death-signal
// behavior: Setpgid so the whole group can be signaled together, Pdeathsig
// so an orphaned child is reaped by the kernel if this process dies first.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// pollStatus performs a single non-blocking wait4(2) peek at pid's status.
// It never blocks: a still-running child reports exited=false with no error.
func pollStatus(pid int) (info ProcessInformation, exited bool, err error) {
	var ws unix.WaitStatus
	wpid, werr := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if werr != nil {
		if werr == unix.EINTR {
			return ProcessInformation{Running: true, PID: pid, ExitCode: -1}, false, nil
		}
		if werr == unix.ECHILD {
			// Already reaped elsewhere, or never ours: treat as exited
			// with unknown status.
			return ProcessInformation{PID: pid, ExitCode: -1}, true, nil
		}
		return ProcessInformation{}, false, werr
	}
	if wpid == 0 {
		return ProcessInformation{Running: true, PID: pid, ExitCode: -1}, false, nil
	}

	info = ProcessInformation{PID: pid, ExitCode: -1}
	switch {
	case ws.Exited():
		info.ExitCode = ws.ExitStatus()
		return info, true, nil
	case ws.Signaled():
		info.Signaled = true
		info.TermSig = int(ws.Signal())
		return info, true, nil
	case ws.Stopped():
		info.Running = true
		info.Stopped = true
		info.StopSig = int(ws.StopSignal())
		return info, false, nil
	default:
		info.Running = true
		return info, false, nil
	}
}

// sendSignal delivers sig to the whole process group rooted at pid
// (syscall.Kill with a negative pid targets the group created by Setpgid).
func sendSignal(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// isProcessRunning reports whether pid can still be signaled. An exited but
// not yet reaped child still counts as running here, so it is only
// consulted after the child has been reaped (Wait's final settle loop).
func isProcessRunning(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
