//go:build unix

package pipe

import (
	"os/exec"
	"testing"
	"time"
)

func TestUnixBackendRoundTripThroughCat(t *testing.T) {
	b, err := New(Mode{}, nil, []byte("ping"))
	if err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command("cat")
	files := b.ChildFiles()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = files[Stdin], files[Stdout], files[Stderr]
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	b.ReleaseChildFiles()

	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	for b.AreOpen() && time.Now().Before(deadline) {
		chunks, err := b.ReadAndWrite(true, true)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, chunks[Stdout]...)
	}

	if err := cmd.Wait(); err != nil {
		t.Fatalf("cat exited with error: %v", err)
	}

	if string(out) != "ping" {
		t.Errorf("captured %q, want %q", out, "ping")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestUnixBackendOutputDisabledUsesNullDevice(t *testing.T) {
	b, err := New(Mode{OutputDisabled: true}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	specs := b.GetDescriptors()
	if specs[Stdout].Kind != DescNull || specs[Stderr].Kind != DescNull {
		t.Errorf("expected stdout/stderr wired to the null device, got %+v", specs)
	}
	if specs[Stdin].Kind != DescPipe {
		t.Errorf("expected stdin to remain a pipe, got %+v", specs[Stdin])
	}
}
