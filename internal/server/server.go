package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"handbook-rag/internal/models"
)

const (
	msgInvalidQuestion = "Missing or invalid 'question' field"
	msgEmptyQuestion   = "Question cannot be empty"

	maxBodyBytes = 1 << 20
)

type Answerer interface {
	Answer(ctx context.Context, question string) (*models.AnswerResult, error)
}

type askResponse struct {
	Answer     string          `json:"answer"`
	AnswerHTML string          `json:"answer_html,omitempty"`
	Sources    []models.Source `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	router   *mux.Router
	answerer Answerer
	diag     *Diagnostics
	md       goldmark.Markdown
}

// New wires the API routes. diag and metrics are optional.
func New(answerer Answerer, diag *Diagnostics, metrics http.Handler) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		answerer: answerer,
		diag:     diag,
		md:       goldmark.New(),
	}
	s.router.Use(logRequests)
	s.router.HandleFunc("/api/ask", s.handleAsk).Methods(http.MethodPost)
	if diag != nil {
		s.router.HandleFunc("/api/debug", s.handleDebug).Methods(http.MethodGet)
	}
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidQuestion})
		return
	}
	question, ok := body["question"].(string)
	if !ok || question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidQuestion})
		return
	}
	if strings.TrimSpace(question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgEmptyQuestion})
		return
	}

	ctx := models.WithRequestInfo(r.Context(), RequestInfo(r))
	res, err := s.answerer.Answer(ctx, question)
	if err != nil {
		log.Error().Err(err).Msg("Failed to answer question")
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	resp := askResponse{Answer: res.Answer, Sources: res.Sources}
	if resp.Sources == nil {
		resp.Sources = []models.Source{}
	}
	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(res.Answer), &buf); err != nil {
			log.Warn().Err(err).Msg("Error rendering answer markdown")
		} else {
			resp.AnswerHTML = buf.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.diag.Run(r.Context()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Error writing response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("Handled request")
	})
}
