//go:build windows

package pipe

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// windowsBackend sidesteps the classic Windows anonymous-pipe deadlock
// (a child that fills its stdout pipe buffer before the parent starts
// reading blocks forever, because CreateProcess duplicates the same
// handle the parent would need to drain it) by redirecting stdout/stderr
// to temp files instead of pipes, and polling file size/offset rather than
// a blocking read.
type windowsBackend struct {
	dir string

	stdoutPath string
	stderrPath string

	stdoutFile *os.File // write end, given to the child
	stderrFile *os.File

	stdoutRead *os.File // read end, parent-owned, tailed by offset
	stderrRead *os.File

	stdoutOff int64
	stderrOff int64

	child [3]*os.File

	inputBuf      []byte
	sourceDrained bool
	inputReader   io.Reader

	stdinR *os.File
	stdinW *os.File

	closed bool
}

// New constructs the Windows backend. mode.PTY is not honored: Windows
// consoles are handled through ConPTY at a layer above this package, since
// the temp-file strategy here only applies to the headless pipe case.
func New(mode Mode, reader io.Reader, data []byte) (*windowsBackend, error) {
	dir, err := os.MkdirTemp("", "goproc-")
	if err != nil {
		return nil, err
	}

	b := &windowsBackend{
		dir:           dir,
		inputBuf:      append([]byte(nil), data...),
		inputReader:   reader,
		sourceDrained: reader == nil,
	}

	suffix := uuid.NewString()
	b.stdoutPath = filepath.Join(dir, "stdout-"+suffix+".tmp")
	b.stderrPath = filepath.Join(dir, "stderr-"+suffix+".tmp")

	if mode.OutputDisabled {
		if err := b.setupNull(); err != nil {
			b.cleanup()
			return nil, err
		}
	} else {
		if err := b.setupTempFiles(); err != nil {
			b.cleanup()
			return nil, err
		}
	}

	if err := b.setupStdin(); err != nil {
		b.cleanup()
		return nil, err
	}

	return b, nil
}

func (b *windowsBackend) setupTempFiles() error {
	outW, err := os.Create(b.stdoutPath)
	if err != nil {
		return err
	}
	b.stdoutFile = outW
	outR, err := os.Open(b.stdoutPath)
	if err != nil {
		return err
	}
	b.stdoutRead = outR

	errW, err := os.Create(b.stderrPath)
	if err != nil {
		return err
	}
	b.stderrFile = errW
	errR, err := os.Open(b.stderrPath)
	if err != nil {
		return err
	}
	b.stderrRead = errR

	b.child[Stdout] = b.stdoutFile
	b.child[Stderr] = b.stderrFile
	return nil
}

func (b *windowsBackend) setupNull() error {
	null, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	b.child[Stdout] = null
	nullErr, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	b.child[Stderr] = nullErr
	return nil
}

func (b *windowsBackend) setupStdin() error {
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	b.stdinR, b.stdinW = r, w
	b.child[Stdin] = r
	return nil
}

func (b *windowsBackend) GetDescriptors() [3]DescriptorSpec {
	var specs [3]DescriptorSpec
	specs[Stdin] = DescriptorSpec{Kind: DescPipe, Mode: "r"}
	if b.stdoutFile != nil {
		specs[Stdout] = DescriptorSpec{Kind: DescFile, Path: b.stdoutPath, Mode: "w"}
	} else {
		specs[Stdout] = DescriptorSpec{Kind: DescNull, Mode: "w"}
	}
	if b.stderrFile != nil {
		specs[Stderr] = DescriptorSpec{Kind: DescFile, Path: b.stderrPath, Mode: "w"}
	} else {
		specs[Stderr] = DescriptorSpec{Kind: DescNull, Mode: "w"}
	}
	return specs
}

func (b *windowsBackend) GetFiles() map[int]string {
	m := make(map[int]string, 2)
	if b.stdoutFile != nil {
		m[Stdout] = b.stdoutPath
	}
	if b.stderrFile != nil {
		m[Stderr] = b.stderrPath
	}
	return m
}

func (b *windowsBackend) ChildFiles() [3]*os.File { return b.child }

// ChildExtraFile always returns nil: Windows has no waitpid-unreliability
// problem to work around with a fallback channel, and process exit codes
// come from GetExitCodeProcess instead.
func (b *windowsBackend) ChildExtraFile() *os.File { return nil }

func (b *windowsBackend) ReleaseChildFiles() {
	for i, f := range b.child {
		if f != nil {
			f.Close()
			b.child[i] = nil
		}
	}
}

// ReadAndWrite drains the input buffer into the child's stdin pipe (best
// effort; Windows anonymous pipes here are small enough that a bounded
// write per step is fine since stdin is never the deadlock-prone side),
// then tails whatever new bytes landed in the temp files since the last
// call.
func (b *windowsBackend) ReadAndWrite(blocking, closing bool) (map[int][]byte, error) {
	result := make(map[int][]byte)

	b.writeInput()
	if closing && b.sourceDrained && len(b.inputBuf) == 0 && b.stdinW != nil {
		b.stdinW.Close()
		b.stdinW = nil
	}

	if b.stdoutRead != nil {
		if n, err := b.tail(b.stdoutRead, &b.stdoutOff, Stdout, result); err != nil {
			return result, err
		} else if n > 0 {
			// progressed
		}
	}
	if b.stderrRead != nil {
		if _, err := b.tail(b.stderrRead, &b.stderrOff, Stderr, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (b *windowsBackend) writeInput() {
	for b.stdinW != nil && len(b.inputBuf) > 0 {
		n := len(b.inputBuf)
		if n > WriteBurst {
			n = WriteBurst
		}
		written, err := b.stdinW.Write(b.inputBuf[:n])
		if err != nil {
			return
		}
		if written <= 0 {
			return
		}
		b.inputBuf = b.inputBuf[written:]
	}
	if b.inputReader != nil && !b.sourceDrained {
		buf := make([]byte, ChunkSize)
		n, err := b.inputReader.Read(buf)
		if n > 0 {
			b.inputBuf = append(b.inputBuf, buf[:n]...)
		}
		if err != nil {
			b.sourceDrained = true
		}
	}
}

func (b *windowsBackend) tail(f *os.File, offset *int64, streamID int, result map[int][]byte) (int, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size <= *offset {
		return 0, nil
	}
	buf := make([]byte, size-*offset)
	n, err := f.ReadAt(buf, *offset)
	if n > 0 {
		result[streamID] = append(result[streamID], buf[:n]...)
		*offset += int64(n)
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

// AreOpen reports whether the child still plausibly holds write handles
// open to its temp files. Since Windows offers no pollable "still open"
// signal for a plain file, the engine is expected to rely on the process
// status primitive rather than this method to decide when to stop polling;
// AreOpen here only reflects whether Close has run.
func (b *windowsBackend) AreOpen() bool { return !b.closed }

func (b *windowsBackend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.ReleaseChildFiles()
	if b.stdinW != nil {
		b.stdinW.Close()
	}
	if b.stdinR != nil {
		b.stdinR.Close()
	}
	if b.stdoutRead != nil {
		b.stdoutRead.Close()
	}
	if b.stderrRead != nil {
		b.stderrRead.Close()
	}
	b.cleanup()
	return nil
}

func (b *windowsBackend) cleanup() {
	os.RemoveAll(b.dir)
}
