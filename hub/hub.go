// Package hub is the HTTP control plane: it serves the tool UI, controls service tools,
// streams CLI tool scans, and proxies third-party lookups.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/guseggert/osinthub/launch"
	"github.com/guseggert/osinthub/proxy"
	"github.com/guseggert/osinthub/service"
	"github.com/guseggert/osinthub/stream"
	"github.com/guseggert/osinthub/tool"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Hub is the HTTP server fronting the tools.
type Hub struct {
	logger *zap.SugaredLogger

	logLevel   *zapcore.Level
	listenAddr string
	publicDir  string
	killGrace  time.Duration
	proxyOpts  []proxy.Option

	tools      *tool.Table
	controller *service.Controller
	gateway    *stream.Gateway
	proxy      *proxy.Proxy

	httpServer *http.Server

	// baseCtx is the parent of every scan; Stop cancels it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	sessionMut sync.Mutex
	stopped    bool
	sessions   sync.WaitGroup
}

type Option func(h *Hub)

func WithListenAddr(s string) Option {
	return func(h *Hub) {
		h.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = l.Named("hub").Sugar()
	}
}

// WithLogLevel raises the minimum level of the hub's logger, whichever logger is configured.
func WithLogLevel(l zapcore.Level) Option {
	return func(h *Hub) {
		h.logLevel = &l
	}
}

// WithPublicDir serves static files from dir for every path not matched by the API.
func WithPublicDir(dir string) Option {
	return func(h *Hub) {
		h.publicDir = dir
	}
}

// WithKillGrace sets how long a cancelled scan has to exit after SIGTERM before it is killed.
func WithKillGrace(d time.Duration) Option {
	return func(h *Hub) {
		h.killGrace = d
	}
}

// WithProxy configures the third-party lookup proxy.
func WithProxy(opts ...proxy.Option) Option {
	return func(h *Hub) {
		h.proxyOpts = append(h.proxyOpts, opts...)
	}
}

// New constructs a hub serving the given tools.
func New(tools *tool.Table, opts ...Option) (*Hub, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	h := &Hub{
		logger:     logger.Named("hub").Sugar(),
		listenAddr: "0.0.0.0:3001",
		killGrace:  stream.DefaultKillGrace,
		tools:      tools,
	}
	for _, o := range opts {
		o(h)
	}
	if h.logLevel != nil {
		h.logger = h.logger.WithOptions(zap.IncreaseLevel(*h.logLevel))
	}
	h.baseCtx, h.cancelBase = context.WithCancel(context.Background())
	h.controller = service.NewController(h.logger, tools)
	h.gateway = &stream.Gateway{
		Log:       h.logger.Named("stream_gateway"),
		Launcher:  &launch.Launcher{Tools: tools},
		KillGrace: h.killGrace,
	}
	h.proxy = proxy.New(h.logger, h.proxyOpts...)
	h.httpServer = &http.Server{
		Handler:     h.Handler(),
		BaseContext: func(net.Listener) context.Context { return h.baseCtx },
	}
	return h, nil
}

// Handler returns the hub's routes.
func (h *Hub) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/api/tools", h.listTools)
	router.GET("/api/status", h.status)
	router.POST("/api/control", h.control)
	router.GET("/api/cli", h.cli)
	router.GET("/api/cli/ws", h.cliWS)
	router.GET("/api/hunter", h.hunter)
	router.GET("/api/shodan", h.shodan)
	router.GlobalOPTIONS = http.HandlerFunc(preflight)
	if h.publicDir != "" {
		router.NotFound = http.FileServer(http.Dir(h.publicDir))
	}
	return withCORS(router)
}

// Run serves until Stop is called.
func (h *Hub) Run() error {
	listener, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	h.logger.Infof("server running on http://%s", listener.Addr())

	err = h.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// beginSession registers an in-flight scan and returns its context, which is done when either
// the request is done or the hub is stopping. It returns false once Stop has been called.
func (h *Hub) beginSession(parent context.Context) (context.Context, func(), bool) {
	h.sessionMut.Lock()
	defer h.sessionMut.Unlock()
	if h.stopped {
		return nil, nil, false
	}
	h.sessions.Add(1)
	ctx, cancel := context.WithCancel(parent)
	stopAfter := context.AfterFunc(h.baseCtx, cancel)
	end := func() {
		stopAfter()
		cancel()
		h.sessions.Done()
	}
	return ctx, end, true
}

// Stop closes the server, cancels in-flight scans and waits for their processes to be reaped,
// then stops every running service.
func (h *Hub) Stop() error {
	h.sessionMut.Lock()
	h.stopped = true
	h.sessionMut.Unlock()

	h.cancelBase()
	err := h.httpServer.Close()
	h.sessions.Wait()
	h.controller.StopAll()
	return err
}
