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

	"github.com/google/uuid"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/text"
	"github.com/example/go-supertonic/internal/tts"
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

// Synthesizer is the service surface the HTTP layer drives. *tts.Service
// implements it; tests substitute fakes.
type Synthesizer interface {
	Synthesize(ctx context.Context, input string, opts tts.Options) (*tts.Result, error)
	SynthesizeStream(ctx context.Context, input string, opts tts.Options, emit func(tts.ChunkAudio) error) (float64, error)
	SampleRate() int
	Voices() []tts.Voice
	Languages() []string
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	dsp            []audio.Hook
}

func defaultOptions() options {
	return options{
		maxTextBytes:   20480,
		workers:        2,
		requestTimeout: 2 * time.Minute,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tts.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDSPHooks sets post-processing filters applied to buffered /tts
// responses before encoding. Streamed responses are emitted unfiltered;
// these filters need the full waveform.
func WithDSPHooks(hooks ...audio.Hook) Option {
	return func(o *options) { o.dsp = hooks }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	synth Synthesizer
	opts  options
	sem   chan struct{} // semaphore for synthesis slots
	log   *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /voices, /languages,
// and POST /tts.
func NewHandler(synth Synthesizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	mux.HandleFunc("/languages", h.handleLanguages)
	mux.HandleFunc("/tts", h.handleTTS)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     buildVersion(),
		"voices":      len(h.synth.Voices()),
		"sample_rate": h.synth.SampleRate(),
	})
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.synth.Voices()
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		ids = append(ids, v.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices": ids,
		"count":  len(ids),
	})
}

func (h *handler) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := h.synth.Languages()
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": langs,
		"count":     len(langs),
	})
}

type ttsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
	Rate     string  `json:"rate"`
	Quality  string  `json:"quality"`
	Steps    int     `json:"steps"`
	Silence  float64 `json:"silence"`
	Stream   bool    `json:"stream"`
}

// requestOptions maps the wire request onto synthesis options. Explicit
// steps win over a quality preset; an explicit speed wins over a rate
// string.
func requestOptions(req ttsRequest) (tts.Options, error) {
	opts := tts.Options{
		Voice:    req.Voice,
		Language: req.Language,
		Speed:    req.Speed,
		Steps:    req.Steps,
		Silence:  req.Silence,
	}

	if opts.Speed == 0 && req.Rate != "" {
		opts.Speed = tts.ParseRate(req.Rate)
	}
	if opts.Steps == 0 && req.Quality != "" {
		steps, err := config.StepsForQuality(req.Quality)
		if err != nil {
			return tts.Options{}, err
		}
		opts.Steps = steps
	}

	return opts, nil
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.opts.maxTextBytes)+4096)

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	opts, err := requestOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := h.log.With(slog.String("request_id", requestID))

	// Acquire a synthesis slot, honoring cancellation while waiting.
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

	if req.Stream {
		h.streamTTS(ctx, w, req, opts, log)
		return
	}

	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req.Text, opts)
	elapsedMS := time.Since(start).Milliseconds()

	if err != nil {
		h.writeSynthesisError(w, log, req, err, elapsedMS)
		return
	}

	if len(h.opts.dsp) > 0 {
		res.Samples = audio.ApplyHooks(res.Samples, h.opts.dsp...)
	}

	wav, err := res.WAV()
	if err != nil {
		log.ErrorContext(r.Context(), "wav encoding failed",
			slog.String("voice", res.Voice),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.InfoContext(r.Context(), "synthesis complete",
		slog.String("voice", res.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int("chunks", res.Chunks),
		slog.Float64("audio_seconds", res.Duration),
		slog.Int64("duration_ms", elapsedMS),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Audio-Duration", fmt.Sprintf("%.3f", res.Duration))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// streamTTS writes a streaming WAV header followed by PCM for each chunk
// as it is synthesized. Once the header is out, failures can only be
// logged and the connection dropped.
func (h *handler) streamTTS(ctx context.Context, w http.ResponseWriter, req ttsRequest, opts tts.Options, log *slog.Logger) {
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)

	if _, err := audio.WriteWAVHeaderStreaming(w, h.synth.SampleRate()); err != nil {
		log.ErrorContext(ctx, "stream header write failed", slog.String("error", err.Error()))
		return
	}

	flusher, _ := w.(http.Flusher)
	start := time.Now()

	total, err := h.synth.SynthesizeStream(ctx, req.Text, opts, func(clip tts.ChunkAudio) error {
		if _, err := audio.WritePCM16Samples(w, clip.Samples); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "streaming synthesis aborted",
			slog.Int("text_len", len(req.Text)),
			slog.String("error", err.Error()),
		)
		return
	}

	log.InfoContext(ctx, "streaming synthesis complete",
		slog.Int("text_len", len(req.Text)),
		slog.Float64("audio_seconds", total),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (h *handler) writeSynthesisError(w http.ResponseWriter, log *slog.Logger, req ttsRequest, err error, elapsedMS int64) {
	attrs := []any{
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", elapsedMS),
		slog.String("error", err.Error()),
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		log.Warn("synthesis timed out", attrs...)
		writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
	case errors.Is(err, tts.ErrTextTooLong) || errors.Is(err, tts.ErrLatentTooLong):
		log.Warn("synthesis rejected", attrs...)
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, tts.ErrUnknownVoice),
		errors.Is(err, tts.ErrInvalidOption),
		errors.Is(err, text.ErrInvalidLanguage),
		errors.Is(err, text.ErrNoSegments),
		errors.Is(err, text.ErrEmptyText):
		log.Warn("synthesis rejected", attrs...)
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("synthesis failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())
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
// Server: handler wiring and graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tts             Synthesizer
	shutdownTimeout time.Duration
}

// New builds a Server around an already-initialized service. A nil svc is
// constructed from cfg on Start, so callers can defer model loading.
func New(cfg config.Config, svc Synthesizer) *Server {
	return &Server{
		cfg:             cfg,
		tts:             svc,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	svc := s.tts
	if svc == nil {
		loaded, err := tts.NewService(s.cfg)
		if err != nil {
			return fmt.Errorf("initialize service: %w", err)
		}
		defer loaded.Close()
		svc = loaded
	}

	maxTextBytes := defaultOptions().maxTextBytes
	if s.cfg.TTS.MaxTextLength > 0 {
		// The handler limit is in bytes; leave headroom for multi-byte
		// runes under the service's rune-based limit.
		maxTextBytes = 4 * s.cfg.TTS.MaxTextLength
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.MaxConcurrent),
		WithMaxTextBytes(maxTextBytes),
		WithRequestTimeout(s.cfg.Server.RequestTimeout),
	}
	if hooks := dspChain(s.cfg.DSP, svc.SampleRate()); len(hooks) > 0 {
		handlerOpts = append(handlerOpts, WithDSPHooks(hooks...))
	}

	h := NewHandler(svc, handlerOpts...)

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
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// dspChain maps the configured post-processing block onto filter hooks in
// application order. A Gain of 0 is the unset zero value, not a mute
// request, so both 0 and the neutral 1.0 add no stage.
func dspChain(c config.DSPConfig, sampleRate int) []audio.Hook {
	var hooks []audio.Hook
	if c.Normalize {
		hooks = append(hooks, audio.PeakNormalize)
	}
	if c.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.DCBlock(s, sampleRate)
		})
	}
	if c.Gain != 0 && c.Gain != 1.0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.Gain(s, c.Gain)
		})
	}
	if c.FadeInMS > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.FadeIn(s, sampleRate, c.FadeInMS)
		})
	}
	if c.FadeOutMS > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.FadeOut(s, sampleRate, c.FadeOutMS)
		})
	}

	return hooks
}

// ProbeHTTP checks a running server's /health endpoint.
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
