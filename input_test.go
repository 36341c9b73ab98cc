package goproc

import (
	"bytes"
	"testing"
)

func TestValidateInputNil(t *testing.T) {
	in, err := validateInput("test", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !in.IsZero() {
		t.Errorf("expected zero Input for nil")
	}
}

func TestValidateInputString(t *testing.T) {
	in, err := validateInput("test", "ping")
	if err != nil {
		t.Fatal(err)
	}
	if in.kind != inputBytes || string(in.data) != "ping" {
		t.Errorf("got kind=%v data=%q", in.kind, in.data)
	}
}

func TestValidateInputScalar(t *testing.T) {
	in, err := validateInput("test", 42)
	if err != nil {
		t.Fatal(err)
	}
	if string(in.data) != "42" {
		t.Errorf("got data=%q, want 42", in.data)
	}
}

func TestValidateInputReader(t *testing.T) {
	r := bytes.NewBufferString("stream")
	in, err := validateInput("test", r)
	if err != nil {
		t.Fatal(err)
	}
	if in.kind != inputStream || in.reader != r {
		t.Errorf("expected the reader to be passed through unchanged")
	}
}

func TestValidateInputRejectsUnsupportedType(t *testing.T) {
	_, err := validateInput("test", struct{}{})
	if err == nil {
		t.Fatal("expected an error for an unsupported input type")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != KindInvalidArgument {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}
