package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-g2pfold/internal/config"
	"github.com/example/go-g2pfold/internal/languages"
	"github.com/example/go-g2pfold/internal/phonemizer"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Phonemizer converts lines for one language. *phonemizer.Adapter
// satisfies it. Err reports an engine that has stopped for good.
type Phonemizer interface {
	Phonemize(ctx context.Context, lines []string) []string
	Err() error
	Close() error
}

// Factory builds a Phonemizer for opts. Errors from language validation
// must match the languages sentinels so they map to the right status.
type Factory func(ctx context.Context, opts phonemizer.Options) (Phonemizer, error)

// LanguageLister returns the supported language codes.
type LanguageLister interface {
	Codes() []string
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxLines       int
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxLines:       1000,
		maxTextBytes:   1 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxLines sets the maximum number of lines accepted by POST /phonemize.
func WithMaxLines(n int) Option {
	return func(o *options) { o.maxLines = n }
}

// WithMaxTextBytes sets the maximum total size of all lines in one request.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent phonemize calls.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// Handler serves /health, /languages and POST /phonemize.
type Handler struct {
	langs LanguageLister
	pool  *pool
	opts  options
	sem   chan struct{} // semaphore for worker pool
	log   *slog.Logger
	mux   *http.ServeMux
}

// NewHandler returns a Handler that builds adapters with factory on first
// use and keeps them until Close.
func NewHandler(factory Factory, langs LanguageLister, optFns ...Option) *Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Handler{
		langs: langs,
		pool:  newPool(factory),
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/languages", h.handleLanguages)
	mux.HandleFunc("/phonemize", h.handlePhonemize)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Close releases every cached adapter.
func (h *Handler) Close() error {
	return h.pool.close()
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *Handler) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	codes := h.langs.Codes()
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"languages": codes})
}

type phonemizeRequest struct {
	Language           string   `json:"language"`
	Lines              []string `json:"lines"`
	KeepWordBoundaries *bool    `json:"keep_word_boundaries"`
	UseFolding         *bool    `json:"use_folding"`
}

func (r phonemizeRequest) options() phonemizer.Options {
	opts := phonemizer.DefaultOptions(r.Language)
	if r.KeepWordBoundaries != nil {
		opts.KeepWordBoundaries = *r.KeepWordBoundaries
	}
	if r.UseFolding != nil {
		opts.UseFolding = *r.UseFolding
	}
	return opts
}

type phonemizeResponse struct {
	Lines []string `json:"lines"`
}

func (h *Handler) handlePhonemize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req phonemizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language field is required")
		return
	}

	if h.opts.maxLines > 0 && len(req.Lines) > h.opts.maxLines {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request has %d lines, maximum is %d", len(req.Lines), h.opts.maxLines))
		return
	}

	textBytes := 0
	for _, line := range req.Lines {
		textBytes += len(line)
	}
	if h.opts.maxTextBytes > 0 && textBytes > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	opts := req.options()
	attrs := []any{
		slog.String("language", req.Language),
		slog.Int("lines", len(req.Lines)),
		slog.Int("text_len", textBytes),
	}

	start := time.Now()
	out, err := h.phonemize(ctx, opts, req.Lines)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusGatewayTimeout {
			msg = "phonemize timed out"
		}
		h.log.WarnContext(r.Context(), "phonemize failed",
			append(attrs, slog.Int("status", status), slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()))...)
		writeError(w, status, msg)
		return
	}

	h.log.InfoContext(r.Context(), "phonemize complete",
		append(attrs, slog.Int64("duration_ms", durationMS))...)

	writeJSON(w, http.StatusOK, phonemizeResponse{Lines: out})
}

// phonemize runs lines on the cached adapter for opts. An adapter whose
// engine has stopped is evicted; a request that found it dead is retried
// once on a fresh adapter.
func (h *Handler) phonemize(ctx context.Context, opts phonemizer.Options, lines []string) ([]string, error) {
	for attempt := 0; ; attempt++ {
		ent, err := h.pool.get(ctx, opts)
		if err != nil {
			return nil, err
		}

		out, err := ent.phonemize(ctx, lines)
		if err == nil {
			return out, nil
		}
		if ent.p.Err() != nil {
			h.pool.evict(opts, ent)
		}
		if !errors.Is(err, errEngineStopped) || attempt > 0 || ctx.Err() != nil {
			return nil, err
		}
		h.log.WarnContext(ctx, "engine stopped, rebuilding adapter",
			slog.String("language", opts.Language), slog.String("error", err.Error()))
	}
}

// statusFor maps phonemize errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, languages.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, languages.ErrMissingResource), errors.Is(err, languages.ErrMissingDependency):
		return http.StatusFailedDependency
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server: wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	factory         Factory
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server for cfg. A nil factory builds epitran adapters from
// cfg.
func New(cfg config.Config, factory Factory) *Server {
	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}
	return &Server{
		cfg:             cfg,
		factory:         factory,
		logger:          slog.Default(),
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// ConfigFactory builds adapters with the paths and engine settings in cfg.
func ConfigFactory(cfg config.Config) Factory {
	return func(ctx context.Context, opts phonemizer.Options) (Phonemizer, error) {
		opts.Verbose = cfg.Phonemizer.Verbose
		opts.EngineOptions = cfg.Engine.Options
		a, err := phonemizer.FromConfig(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func (s *Server) Start(ctx context.Context) error {
	langs, err := phonemizer.RegistryFromConfig(s.cfg)
	if err != nil {
		return err
	}

	factory := s.factory
	if factory == nil {
		factory = ConfigFactory(s.cfg)
	}

	h := NewHandler(factory, langs,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxLines(s.cfg.Server.MaxLines),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithLogger(s.logger),
	)
	defer func() {
		if err := h.Close(); err != nil {
			s.logger.Warn("close adapters", slog.String("error", err.Error()))
		}
	}()

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
