package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/quantlabs/signalgate/internal/app"
	"github.com/quantlabs/signalgate/internal/domain"
	"github.com/quantlabs/signalgate/internal/gates"
	"github.com/quantlabs/signalgate/internal/lifecycle"
)

// Server exposes the decision engine over HTTP: health, status, metrics, and
// the evaluate/trade endpoints used by the upstream signal pipeline.
type Server struct {
	svc  *app.Service
	http *http.Server
}

// NewServer builds the router and HTTP server.
func NewServer(addr string, svc *app.Service) *Server {
	s := &Server{svc: svc}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", svc.Registry().Handler()).Methods(http.MethodGet)
	r.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	r.HandleFunc("/trades", s.handleOpenTrade).Methods(http.MethodPost)
	r.HandleFunc("/trades/{id}/close", s.handleCloseTrade).Methods(http.MethodPost)
	r.HandleFunc("/mode", s.handleMode).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":          s.svc.State(),
		"performance":    s.svc.Metrics(),
		"pending_trades": s.svc.PendingCount(),
		"parameters":     s.svc.Params(),
		"patterns":       s.svc.FeedbackSnapshot(),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var snap domain.FeatureSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid feature snapshot: "+err.Error())
		return
	}
	if !snap.Side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be LONG or SHORT")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Evaluate(snap))
}

type openTradeRequest struct {
	Symbol     string         `json:"symbol"`
	Side       domain.Side    `json:"side"`
	Pattern    string         `json:"pattern_type"`
	EntryPrice float64        `json:"entry_price"`
	Decision   gates.Decision `json:"decision"`
}

func (s *Server) handleOpenTrade(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade request: "+err.Error())
		return
	}
	tradeID, err := s.svc.RecordSignalAccepted(req.Symbol, req.Side, req.Pattern, req.EntryPrice, req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"trade_id": tradeID})
}

type closeTradeRequest struct {
	ExitPrice float64  `json:"exit_price"`
	IsWinner  bool     `json:"is_winner"`
	PnLPct    *float64 `json:"pnl_pct,omitempty"`
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := mux.Vars(r)["id"]

	var req closeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid close request: "+err.Error())
		return
	}
	if err := s.svc.RecordTradeOutcome(r.Context(), tradeID, req.ExitPrice, req.IsWinner, req.PnLPct); err != nil {
		status := http.StatusConflict
		if errors.Is(err, lifecycle.ErrUnknownTrade) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

type modeRequest struct {
	LearningMode        *bool `json:"learning_mode,omitempty"`
	OptimizationEnabled *bool `json:"optimization_enabled,omitempty"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid mode request: "+err.Error())
		return
	}
	if req.LearningMode != nil {
		s.svc.SetLearningMode(*req.LearningMode)
	}
	if req.OptimizationEnabled != nil {
		s.svc.SetOptimizationEnabled(*req.OptimizationEnabled)
	}
	writeJSON(w, http.StatusOK, s.svc.State())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
