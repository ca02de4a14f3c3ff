package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/procbuilder/internal/builder"
	"github.com/loykin/procbuilder/internal/launcher"
	"github.com/loykin/procbuilder/internal/metrics"
)

// Router provides embeddable HTTP handlers for rendering and running invocations.
// Endpoints:
//
//	POST {basePath}/render   body: invocationReq JSON, returns the rendered invocation
//	POST {basePath}/run      body: invocationReq JSON, runs it and returns the result
//	GET  {basePath}/metrics  Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
//
// /render and /run only accept application/json bodies and, when a token is
// set, a matching "Authorization: Bearer <token>" header.
type Router struct {
	launcher *launcher.Launcher
	basePath string
	token    string
}

// NewRouter constructs a Router. With a nil launcher /run uses a default one
// without history.
func NewRouter(l *launcher.Launcher, basePath string) *Router {
	if l == nil {
		l = launcher.New(nil)
	}
	return &Router{launcher: l, basePath: sanitizeBase(basePath)}
}

// RequireToken protects /render and /run with a bearer token.
func (r *Router) RequireToken(token string) *Router {
	r.token = token
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	api := group.Group("", bearerAuth(r.token), requireJSON)
	api.POST("/render", r.handleRender)
	api.POST("/run", r.handleRun)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using r.
func NewServer(addr string, r *Router) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// invocationReq mirrors the builder operations.
type invocationReq struct {
	Name       string            `json:"name"`
	Prefix     []string          `json:"prefix"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	InheritEnv *bool             `json:"inherit_env"`
	Timeout    *float64          `json:"timeout"` // seconds
	WorkDir    string            `json:"work_dir"`
}

type renderResp struct {
	Name        string            `json:"name"`
	CommandLine string            `json:"command_line"`
	Argv        []string          `json:"argv"`
	Env         map[string]string `json:"env"` // null: inherit the server environment
	Timeout     *float64          `json:"timeout"`
	Dir         string            `json:"dir,omitempty"`
	Dialect     string            `json:"dialect"`
}

type runResp struct {
	launcher.Result
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  string `json:"error,omitempty"`
}

func (r *Router) handleRender(c *gin.Context) {
	inv, ok := bindInvocation(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, toRenderResp(inv))
}

func (r *Router) handleRun(c *gin.Context) {
	inv, ok := bindInvocation(c)
	if !ok {
		return
	}
	var stdout, stderr bytes.Buffer
	l := *r.launcher
	l.Stdin = nil
	l.Stdout = &stdout
	l.Stderr = &stderr
	res, err := l.Run(c.Request.Context(), inv)
	if errors.Is(err, launcher.ErrLaunch) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	resp := runResp{Result: res, Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(c, http.StatusOK, resp)
}

func bindInvocation(c *gin.Context) (builder.Invocation, bool) {
	var req invocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return builder.Invocation{}, false
	}
	if len(req.Prefix)+len(req.Args) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "prefix or args required"})
		return builder.Invocation{}, false
	}
	// name becomes a log file stem, work_dir a chdir target
	if req.Name != "" && !isSafeName(req.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..'"})
		return builder.Invocation{}, false
	}
	if !isSafeAbsPath(req.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return builder.Invocation{}, false
	}

	b := builder.New(req.Args...).SetPrefix(req.Prefix...).SetName(req.Name).SetWorkDir(req.WorkDir)
	if req.InheritEnv != nil {
		b.InheritEnvironmentVariables(*req.InheritEnv)
	}
	for k, v := range req.Env {
		if !isEnvKey(k) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid env key " + k})
			return builder.Invocation{}, false
		}
		b.SetEnv(k, v)
	}
	if req.Timeout != nil {
		if _, err := b.SetTimeout(time.Duration(*req.Timeout * float64(time.Second))); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return builder.Invocation{}, false
		}
	}
	return b.Render(), true
}

func toRenderResp(inv builder.Invocation) renderResp {
	resp := renderResp{
		Name:        inv.Name,
		CommandLine: inv.CommandLine,
		Argv:        inv.Argv,
		Env:         inv.Env,
		Dir:         inv.Dir,
		Dialect:     inv.Dialect.String(),
	}
	if inv.Timeout != nil {
		s := inv.Timeout.Seconds()
		resp.Timeout = &s
	}
	return resp
}
