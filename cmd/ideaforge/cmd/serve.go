package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideaforge-dev/ideaforge/internal/orchestrator"
	"github.com/ideaforge-dev/ideaforge/pkg/monitor"
	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with metrics and health endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address for the API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, cleanup, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	api := &apiServer{orch: app.Orchestrator, notifyTo: cfg.Notify.SlackChannel}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", api.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", api.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", api.deleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/actions", api.submitAction)
	mux.HandleFunc("POST /v1/sessions/{id}/research", api.runResearch)
	mux.HandleFunc("POST /v1/sessions/{id}/notify", api.notifyPRD)
	mux.HandleFunc("GET /v1/sessions/{id}/metrics", api.metricsSnapshot)
	mux.HandleFunc("GET /healthz", healthz)

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Prometheus scraping gets its own listener, kept off the API port.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", monitor.MetricsHandler())
	metricsMux.HandleFunc("GET /healthz", healthz)
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		log.Printf("listening on %s", serveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	go func() {
		log.Printf("metrics on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		log.Println("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
	return srv.Shutdown(ctx)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type apiServer struct {
	orch     *orchestrator.Orchestrator
	notifyTo string
}

type createSessionRequest struct {
	IdeaID string `json:"idea_id"`
	UserID string `json:"user_id"`
}

type actionRequest struct {
	Trigger string `json:"trigger"`
	Message string `json:"message"`
}

type notifyRequest struct {
	Recipient string `json:"recipient"`
}

func (a *apiServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.IdeaID == "" {
		writeError(w, http.StatusBadRequest, errors.New("idea_id is required"))
		return
	}

	st, err := a.orch.CreateSession(r.Context(), req.IdeaID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *apiServer) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := a.orch.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *apiServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.orch.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) submitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	trigger := state.Trigger(req.Trigger)
	if trigger == "" {
		trigger = state.TriggerChat
	}

	st, err := a.orch.SubmitAction(r.Context(), r.PathValue("id"), trigger, req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *apiServer) runResearch(w http.ResponseWriter, r *http.Request) {
	st, err := a.orch.RunMarketResearch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *apiServer) notifyPRD(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	// An empty body means "use the configured channel".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = a.notifyTo
	}
	if recipient == "" {
		writeError(w, http.StatusBadRequest, errors.New("no recipient configured"))
		return
	}

	st, err := a.orch.NotifyPRD(r.Context(), r.PathValue("id"), recipient)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *apiServer) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	summary := a.orch.MetricsSnapshot(r.Context(), r.PathValue("id"))
	if summary == nil {
		writeError(w, http.StatusNotFound, state.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeDomainError maps workflow errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *state.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"issues": verr.Issues,
		})
	case errors.Is(err, state.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, state.ErrSessionBusy), errors.Is(err, state.ErrSessionExists):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
