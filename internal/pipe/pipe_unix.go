//go:build unix

package pipe

import (
	"io"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// unixBackend is the POSIX Pipe Backend: descriptor allocation over
// pipe(2)/pty/the null device, and non-blocking, interleaved I/O over them
// driven by poll(2).
type unixBackend struct {
	mode Mode

	specs [3]DescriptorSpec
	child [3]*os.File // already open, handed to exec.Cmd

	// Parent-side ends. -1 means "not applicable to this mode".
	stdinW  int
	stdoutR int
	stderrR int

	stdinOpen  bool
	stdoutOpen bool
	stderrOpen bool

	// Sigchild fallback channel (child fd 3): child writes its exit code,
	// parent reads it back in case waitpid can't be trusted. sigchildChild
	// is the write end handed to the child via exec.Cmd.ExtraFiles.
	sigchildR     int
	sigchildOpen  bool
	sigchildChild *os.File

	// Input plumbing.
	inputBuf      []byte
	sourceDrained bool
	inputReader   io.Reader // non-nil only when pollable (has Fd())
	inputFd       int       // fd of inputReader when pollable
	inputOpen     bool

	ptyMaster *os.File // kept alive only in PTY mode; see setupPTY/Close

	lost bool // a true (non-EINTR) I/O failure occurred
}

// fder is satisfied by *os.File and anything else exposing a raw fd.
type fder interface {
	Fd() uintptr
}

// New constructs the POSIX backend for the given mode and (already
// validated, pre-eager-drained-if-necessary) input bytes/reader.
//
// data is used when the input has no pollable fd (either it was a scalar/
// string, or a generic io.Reader without Fd()); in the latter case the
// caller is expected to have already drained it eagerly.
func New(mode Mode, reader io.Reader, data []byte) (*unixBackend, error) {
	b := &unixBackend{
		mode:          mode,
		stdinW:        -1,
		stdoutR:       -1,
		stderrR:       -1,
		sigchildR:     -1,
		inputFd:       -1,
		inputBuf:      append([]byte(nil), data...),
		sourceDrained: true,
	}

	if f, ok := reader.(fder); ok && reader != nil {
		b.inputReader = reader
		b.inputFd = int(f.Fd())
		b.sourceDrained = false
		b.inputOpen = true
		if err := unix.SetNonblock(b.inputFd, true); err != nil {
			return nil, err
		}
	}

	switch {
	case mode.OutputDisabled:
		if err := b.setupOutputDisabled(); err != nil {
			return nil, err
		}
	case mode.TTY:
		if err := b.setupTTY(); err != nil {
			return nil, err
		}
	case mode.PTY && IsPTYSupported():
		if err := b.setupPTY(); err != nil {
			return nil, err
		}
	default:
		if err := b.setupPipes(); err != nil {
			return nil, err
		}
	}

	if mode.Sigchild {
		if err := b.allocSigchildPipe(); err != nil {
			b.Close()
			return nil, err
		}
	}

	return b, nil
}

// allocSigchildPipe opens the fourth descriptor: the parent keeps the read
// end (polled alongside stdout/stderr), the child inherits the write end
// via exec.Cmd.ExtraFiles at fd 3.
func (b *unixBackend) allocSigchildPipe() error {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return err
	}
	b.sigchildR = fds[0]
	b.sigchildOpen = true
	b.sigchildChild = os.NewFile(uintptr(fds[1]), "sigchild-write")
	return nil
}

func (b *unixBackend) setupOutputDisabled() error {
	if err := b.allocStdinPipe(); err != nil {
		return err
	}
	null, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		b.closeStdin()
		return err
	}
	b.child[Stdout] = null
	nullErr, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		b.closeStdin()
		null.Close()
		return err
	}
	b.child[Stderr] = nullErr

	b.specs[Stdin] = DescriptorSpec{Kind: DescPipe, Mode: "r"}
	b.specs[Stdout] = DescriptorSpec{Kind: DescNull, Mode: "w"}
	b.specs[Stderr] = DescriptorSpec{Kind: DescNull, Mode: "w"}
	return nil
}

func (b *unixBackend) setupTTY() error {
	in, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	out, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		in.Close()
		return err
	}
	errF, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		in.Close()
		out.Close()
		return err
	}
	b.child[Stdin], b.child[Stdout], b.child[Stderr] = in, out, errF
	b.specs[Stdin] = DescriptorSpec{Kind: DescPTY, Path: "/dev/tty", Mode: "r"}
	b.specs[Stdout] = DescriptorSpec{Kind: DescPTY, Path: "/dev/tty", Mode: "w"}
	b.specs[Stderr] = DescriptorSpec{Kind: DescPTY, Path: "/dev/tty", Mode: "w"}
	return nil
}

func (b *unixBackend) setupPTY() error {
	master, slave, err := pty.Open()
	if err != nil {
		return err
	}
	b.child[Stdin] = slave
	b.child[Stdout] = slave
	b.child[Stderr] = slave

	fd := int(master.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		master.Close()
		slave.Close()
		return err
	}
	// The PTY master behaves like a bidirectional pipe: we write the
	// child's stdin into it and read its combined stdout+stderr back out.
	b.stdinW = fd
	b.stdoutR = fd
	b.stdinOpen = true
	b.stdoutOpen = true
	// Keep the *os.File alive so GC doesn't finalize (and close) the
	// underlying fd out from under our raw syscalls.
	b.ptyMaster = master

	b.specs[Stdin] = DescriptorSpec{Kind: DescPTY, Mode: "r"}
	b.specs[Stdout] = DescriptorSpec{Kind: DescPTY, Mode: "w"}
	b.specs[Stderr] = DescriptorSpec{Kind: DescPTY, Mode: "w"}
	return nil
}

func (b *unixBackend) setupPipes() error {
	if err := b.allocStdinPipe(); err != nil {
		return err
	}
	if err := b.allocOutputPipe(Stdout, &b.stdoutR, &b.stdoutOpen); err != nil {
		b.closeStdin()
		return err
	}
	if err := b.allocOutputPipe(Stderr, &b.stderrR, &b.stderrOpen); err != nil {
		b.closeStdin()
		b.child[Stdout].Close()
		unix.Close(b.stdoutR)
		return err
	}
	b.specs[Stdin] = DescriptorSpec{Kind: DescPipe, Mode: "r"}
	b.specs[Stdout] = DescriptorSpec{Kind: DescPipe, Mode: "w"}
	b.specs[Stderr] = DescriptorSpec{Kind: DescPipe, Mode: "w"}
	return nil
}

func (b *unixBackend) allocStdinPipe() error {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return err
	}
	b.child[Stdin] = os.NewFile(uintptr(fds[0]), "stdin-read")
	b.stdinW = fds[1]
	b.stdinOpen = true
	return nil
}

func (b *unixBackend) allocOutputPipe(slot int, parentFd *int, openFlag *bool) error {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return err
	}
	b.child[slot] = os.NewFile(uintptr(fds[1]), "out-write")
	*parentFd = fds[0]
	*openFlag = true
	return nil
}

func (b *unixBackend) closeStdin() {
	if b.stdinOpen {
		unix.Close(b.stdinW)
		b.stdinOpen = false
	}
	if b.child[Stdin] != nil {
		b.child[Stdin].Close()
		b.child[Stdin] = nil
	}
}

func (b *unixBackend) GetDescriptors() [3]DescriptorSpec { return b.specs }
func (b *unixBackend) GetFiles() map[int]string          { return nil }
func (b *unixBackend) ChildFiles() [3]*os.File            { return b.child }
func (b *unixBackend) ChildExtraFile() *os.File           { return b.sigchildChild }

func (b *unixBackend) ReleaseChildFiles() {
	for i, f := range b.child {
		if f != nil {
			f.Close()
			b.child[i] = nil
		}
	}
	if b.sigchildChild != nil {
		b.sigchildChild.Close()
		b.sigchildChild = nil
	}
}

// ReadAndWrite performs one non-blocking I/O step: drain the caller's
// input into the child's stdin, and drain any ready output handle fully.
// Stdin is closed the moment it's fully drained, regardless of closing —
// the child needs EOF on its stdin to finish reading long before the
// engine has any reason to believe the process itself has exited.
func (b *unixBackend) ReadAndWrite(blocking, closing bool) (map[int][]byte, error) {
	result := make(map[int][]byte)

	b.writeInput()
	if b.sourceDrained && len(b.inputBuf) == 0 && b.stdinOpen {
		unix.Close(b.stdinW)
		b.stdinOpen = false
		if b.child[Stdin] != nil {
			b.child[Stdin].Close()
			b.child[Stdin] = nil
		}
	}

	pollFds := b.buildPollFds()
	if len(pollFds) == 0 {
		return result, nil
	}

	timeout := 0
	if blocking {
		timeout = int(PollTimeout / 1e6) // milliseconds
	}

	n, err := unix.Poll(pollFds, timeout)
	if err != nil {
		if err == unix.EINTR {
			// Interrupted system call: no-op, preserve state, retry later.
			return result, nil
		}
		b.lost = true
		return result, err
	}
	if n == 0 {
		return result, nil
	}

	for _, pfd := range pollFds {
		if pfd.Revents == 0 {
			continue
		}
		switch int(pfd.Fd) {
		case b.inputFd:
			b.drainInputFd()
		case b.stdoutR:
			b.drainOutput(Stdout, &b.stdoutR, &b.stdoutOpen, closing, result)
		case b.stderrR:
			b.drainOutput(Stderr, &b.stderrR, &b.stderrOpen, closing, result)
		case b.sigchildR:
			b.drainOutput(Sigchild, &b.sigchildR, &b.sigchildOpen, closing, result)
		}
	}

	return result, nil
}

func (b *unixBackend) buildPollFds() []unix.PollFd {
	var fds []unix.PollFd
	if b.inputOpen && b.inputFd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(b.inputFd), Events: unix.POLLIN})
	}
	if b.stdoutOpen {
		fds = append(fds, unix.PollFd{Fd: int32(b.stdoutR), Events: unix.POLLIN})
	}
	if b.stderrOpen && b.stderrR != b.stdoutR {
		fds = append(fds, unix.PollFd{Fd: int32(b.stderrR), Events: unix.POLLIN})
	}
	if b.sigchildOpen {
		fds = append(fds, unix.PollFd{Fd: int32(b.sigchildR), Events: unix.POLLIN})
	}
	return fds
}

func (b *unixBackend) drainInputFd() {
	buf := make([]byte, ChunkSize)
	for {
		n, err := unix.Read(b.inputFd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			b.sourceDrained = true
			b.inputOpen = false
			return
		}
		if n == 0 {
			b.sourceDrained = true
			b.inputOpen = false
			return
		}
		b.inputBuf = append(b.inputBuf, buf[:n]...)
	}
}

func (b *unixBackend) writeInput() {
	for b.stdinOpen && len(b.inputBuf) > 0 {
		n := len(b.inputBuf)
		if n > WriteBurst {
			n = WriteBurst
		}
		written, err := unix.Write(b.stdinW, b.inputBuf[:n])
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			b.lost = true
			return
		}
		// Treat a non-positive write count as "would block", not an error.
		if written <= 0 {
			return
		}
		b.inputBuf = b.inputBuf[written:]
	}
}

func (b *unixBackend) drainOutput(streamID int, fd *int, open *bool, closing bool, result map[int][]byte) {
	buf := make([]byte, ChunkSize)
	for {
		n, err := unix.Read(*fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			b.lost = true
			unix.Close(*fd)
			*open = false
			return
		}
		if n == 0 {
			// EOF.
			if closing {
				unix.Close(*fd)
				*open = false
			}
			return
		}
		result[streamID] = append(result[streamID], buf[:n]...)
	}
}

func (b *unixBackend) AreOpen() bool {
	if b.mode.TTY {
		return false
	}
	return b.stdinOpen || b.stdoutOpen || (b.stderrOpen && b.stderrR != b.stdoutR) || b.sigchildOpen
}

func (b *unixBackend) Close() error {
	if b.stdinOpen {
		unix.Close(b.stdinW)
		b.stdinOpen = false
	}
	if b.stdoutOpen {
		unix.Close(b.stdoutR)
		b.stdoutOpen = false
	}
	if b.stderrOpen && b.stderrR != b.stdoutR {
		unix.Close(b.stderrR)
	}
	b.stderrOpen = false
	if b.sigchildOpen {
		unix.Close(b.sigchildR)
		b.sigchildOpen = false
	}
	if b.sigchildChild != nil {
		b.sigchildChild.Close()
		b.sigchildChild = nil
	}
	if b.ptyMaster != nil {
		b.ptyMaster.Close()
		b.ptyMaster = nil
	}
	b.ReleaseChildFiles()
	return nil
}
