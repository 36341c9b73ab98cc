// Command goproc-introspect runs the httpapi introspection server over an
// in-memory registry. Processes are registered by starting them through
// the -start flag (repeatable, "name=command line").
package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/runprocx/goproc"
	"github.com/runprocx/goproc/httpapi"
	"github.com/runprocx/goproc/internal/config"
	"github.com/runprocx/goproc/redisbus"
	"github.com/runprocx/goproc/registry"
)

type startFlag []string

func (s *startFlag) String() string { return strings.Join(*s, ",") }
func (s *startFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var starts startFlag
	flag.Var(&starts, "start", `register and start a process, "name=command line" (repeatable)`)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	reg := registry.New(log)

	var redisClient *redis.Client
	if addr := config.RedisAddr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}
	bus := redisbus.New(redisClient, "")
	reg.SetBus(bus)

	for _, spec := range starts {
		name, cmdline, ok := strings.Cut(spec, "=")
		if !ok {
			log.Fatal("bad -start value, want name=command line", zap.String("value", spec))
		}
		p, err := goproc.New(cmdline, "", nil, nil, nil)
		if err != nil {
			log.Fatal("invalid process", zap.String("name", name), zap.Error(err))
		}
		p.SetLogger(log)
		if err := p.Start(nil); err != nil {
			log.Fatal("start failed", zap.String("name", name), zap.Error(err))
		}
		reg.Put(name, p)
		log.Info("started process", zap.String("name", name), zap.Int("pid", p.Pid()))
	}

	router, err := httpapi.NewRouter(reg, log, httpapi.Config{
		RedisAddr:     config.RedisAddr(),
		SessionSecret: config.SessionSecret(),
		GracePeriod:   config.DefaultGracePeriod(),
	})
	if err != nil {
		log.Fatal("router setup failed", zap.Error(err))
	}

	go func() {
		if err := router.Run(config.HTTPAddr()); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down, stopping tracked processes")
	reg.StopAll(config.DefaultGracePeriod())
}
