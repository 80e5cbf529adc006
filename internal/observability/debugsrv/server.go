// Package debugsrv serves the optional local debug endpoints: liveness,
// the reminder engine status as JSON and net/http/pprof.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	logx "reminderd/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

var ErrInsecureBind = errors.New("debug server: non-loopback addr requires token or allow_insecure")

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

// StatusFunc returns the value encoded by GET /status.
type StatusFunc func() any

type Server struct {
	cfg    Config
	status StatusFunc
	log    logx.Logger

	mu   sync.Mutex
	addr string
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6060"
	}
	return &Server{cfg: cfg, status: status, log: log}
}

// CheckBind reports ErrInsecureBind for a public addr without a token.
func CheckBind(cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" || cfg.AllowInsecure || strings.TrimSpace(cfg.Token) != "" {
		return nil
	}
	if !isLoopbackAddr(addr) {
		return ErrInsecureBind
	}
	return nil
}

// Addr is the bound listener address while Run is serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Handler() http.Handler {
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/status", wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var v any
		if s.status != nil {
			v = s.status()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			s.log.Warn("status encode failed", logx.Err(err))
		}
	}))

	mux.HandleFunc(pprofPrefix, wrap(hpprof.Index))
	mux.HandleFunc(pprofPrefix+"cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc(pprofPrefix+"profile", wrap(hpprof.Profile))
	mux.HandleFunc(pprofPrefix+"symbol", wrap(hpprof.Symbol))
	mux.HandleFunc(pprofPrefix+"trace", wrap(hpprof.Trace))
	return mux
}

// Run listens and serves until ctx is done. A nil return after ctx is done
// means a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := CheckBind(s.cfg); err != nil {
		return err
	}
	if s.cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(s.cfg.MutexProfileFraction)
	}
	if s.cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(s.cfg.BlockProfileRate)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.addr = ""
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		s.log.Info("debug server stopped")
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
