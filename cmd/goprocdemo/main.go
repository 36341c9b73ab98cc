// Command goprocdemo runs a single command through goproc and streams its
// output to stdout, demonstrating the library's callback-based API.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/runprocx/goproc"
)

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func main() {
	timeout := flag.Float64("timeout", 0, "wall-clock timeout in seconds (0 disables)")
	idle := flag.Float64("idle-timeout", 0, "idle timeout in seconds (0 disables)")
	flag.Parse()
	commandLine := flag.Arg(0)
	if commandLine == "" {
		fmt.Fprintln(os.Stderr, "usage: goprocdemo [-timeout=N] [-idle-timeout=N] \"<command line>\"")
		os.Exit(2)
	}

	log := newLogger()
	defer log.Sync()

	var timeoutPtr, idlePtr *float64
	if *timeout > 0 {
		timeoutPtr = timeout
	}
	if *idle > 0 {
		idlePtr = idle
	}

	p, err := goproc.New(commandLine, "", nil, nil, timeoutPtr)
	if err != nil {
		log.Fatal("invalid process", zap.Error(err))
	}
	p.SetLogger(log)
	if idlePtr != nil {
		if err := p.SetIdleTimeout(idlePtr); err != nil {
			log.Fatal("invalid idle timeout", zap.Error(err))
		}
	}

	code, err := p.Run(func(kind goproc.OutputType, chunk []byte) {
		if kind == goproc.OUT {
			os.Stdout.Write(chunk)
		} else {
			os.Stderr.Write(chunk)
		}
	})
	if err != nil {
		log.Error("run failed", zap.Error(err), zap.Int("exit_code", code))
		os.Exit(1)
	}
	os.Exit(code)
}
