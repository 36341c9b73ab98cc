// Package httpapi exposes a read/control surface over a registry.Registry
// of goproc.Process instances: list processes, inspect one, read its
// buffered output, signal it, or stop it. This is layered on top of the
// engine — the engine itself has no HTTP surface and no import of this
// package.
package httpapi

import (
	"net/http"
	"strconv"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runprocx/goproc"
	"github.com/runprocx/goproc/registry"
)

// Config controls the optional middleware this server wires in.
type Config struct {
	// AllowOrigins is the CORS allow-list; empty disables CORS entirely.
	AllowOrigins []string
	// RedisAddr, when non-empty, backs the session store with redis
	// (github.com/gin-contrib/sessions/redis, which wraps
	// github.com/boj/redistore) instead of a cookie store that keeps the
	// session data in the client's cookie.
	RedisAddr     string
	SessionSecret string
	GracePeriod   float64
}

// NewRouter builds the gin.Engine for the introspection API over reg.
func NewRouter(reg *registry.Registry, log *zap.Logger, cfg Config) (*gin.Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ZapLogger(log))

	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	if len(cfg.AllowOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowOrigins
		corsCfg.AllowMethods = []string{"GET", "POST"}
		r.Use(cors.New(corsCfg))
	}

	if err := wireSessions(r, cfg); err != nil {
		return nil, err
	}

	api := &api{reg: reg, log: log, gracePeriod: cfg.GracePeriod}
	api.register(r)
	return r, nil
}

func wireSessions(r *gin.Engine, cfg Config) error {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "dev-insecure-secret-change-me"
	}
	if cfg.RedisAddr == "" {
		store := sessions.NewCookieStore([]byte(secret))
		r.Use(sessions.Sessions("goproc_session", store))
		return nil
	}
	store, err := redis.NewStore(10, "tcp", cfg.RedisAddr, "", []byte(secret))
	if err != nil {
		return err
	}
	r.Use(sessions.Sessions("goproc_session", store))
	return nil
}

type api struct {
	reg         *registry.Registry
	log         *zap.Logger
	gracePeriod float64
}

func (a *api) register(r *gin.Engine) {
	g := r.Group("/processes")
	g.GET("", a.list)
	g.GET("/:name", a.get)
	g.GET("/:name/output", a.output)
	g.GET("/:name/error-output", a.errorOutput)
	g.POST("/:name/signal/:sig", requireSession(), a.signal)
	g.POST("/:name/stop", requireSession(), a.stop)
}

// requireSession gates destructive endpoints (signal, stop) behind the
// session middleware wireSessions already registers: a request with no
// "user" key in its session is rejected before it ever reaches the
// registry. Read-only endpoints (list, get, output) stay open.
func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions.Default(c).Get("user") == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

type processSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	PID      int    `json:"pid"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func (a *api) summarize(name string, p *goproc.Process) processSummary {
	return processSummary{
		Name:     name,
		Status:   string(p.GetStatus()),
		PID:      p.Pid(),
		ExitCode: p.GetExitCode(),
	}
}

func (a *api) list(c *gin.Context) {
	names := a.reg.Names()
	out := make([]processSummary, 0, len(names))
	for _, name := range names {
		if p := a.reg.Get(name); p != nil {
			out = append(out, a.summarize(name, p))
		}
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) lookup(c *gin.Context) (string, *goproc.Process, bool) {
	name := c.Param("name")
	p := a.reg.Get(name)
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such process", "name": name})
		return name, nil, false
	}
	return name, p, true
}

func (a *api) get(c *gin.Context) {
	name, p, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.summarize(name, p))
}

func (a *api) output(c *gin.Context) {
	_, p, ok := a.lookup(c)
	if !ok {
		return
	}
	out, err := p.GetOutput()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", out)
}

func (a *api) errorOutput(c *gin.Context) {
	_, p, ok := a.lookup(c)
	if !ok {
		return
	}
	out, err := p.GetErrorOutput()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", out)
}

func (a *api) signal(c *gin.Context) {
	_, p, ok := a.lookup(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("sig"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal must be a number"})
		return
	}
	if err := p.Signal(syscall.Signal(n)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) stop(c *gin.Context) {
	name, _, ok := a.lookup(c)
	if !ok {
		return
	}
	grace := a.gracePeriod
	if grace == 0 {
		grace = 3
	}
	code, err := a.reg.Stop(name, grace)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exit_code": code})
}
