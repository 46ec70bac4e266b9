package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"solmate-cli/session"
	solmate_program "solmate-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

type leaderboardFunc func(ctx context.Context, limit int) ([]solmate_program.PlayerEntry, error)

type historyFunc func(ctx context.Context, limit int) ([]solmate_program.HistoryEvent, error)

// apiServer exposes the session over HTTP.
type apiServer struct {
	sess        *session.Session
	leaderboard leaderboardFunc
	history     historyFunc
	registry    *prometheus.Registry
	log         *zap.Logger
}

func newAPIServer(a *app) *apiServer {
	return &apiServer{
		sess: a.session,
		leaderboard: func(ctx context.Context, limit int) ([]solmate_program.PlayerEntry, error) {
			return a.client.FetchAllPlayers(ctx, limit, a.log)
		},
		history: func(ctx context.Context, limit int) ([]solmate_program.HistoryEvent, error) {
			return a.client.GetHistory(ctx, a.session.PlayerKey(), limit, a.log)
		},
		registry: a.registry,
		log:      a.log.Named("api"),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/player", s.handlePlayer)
	mux.HandleFunc("/api/points", s.handlePoints)
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

type StatusView struct {
	Player       solana.PublicKey `json:"player"`
	Wallet       solana.PublicKey `json:"wallet"`
	Connection   string           `json:"connection"`
	AccountState string           `json:"accountState"`
	Score        uint64           `json:"score"`
}

type PlayerView struct {
	Address solana.PublicKey `json:"address"`
	solmate_program.PlayerAccount
	// Score includes local increments not yet seen on chain.
	Score uint64 `json:"score"`
}

type PointsRequest struct {
	Amount uint64 `json:"amount"`
}

type PointsResponse struct {
	Outcome string `json:"outcome"`
	Score   uint64 `json:"score"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, StatusView{
		Player:       s.sess.PlayerKey(),
		Wallet:       s.sess.WalletKey(),
		Connection:   s.sess.ConnectionState().String(),
		AccountState: s.sess.AccountState().String(),
		Score:        s.sess.Score(),
	})
}

func (s *apiServer) handlePlayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		if _, err := s.sess.LoadData(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
	}
	player := s.sess.Player()
	if player == nil {
		http.Error(w, "Player account not loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, PlayerView{Address: s.sess.PlayerKey(), PlayerAccount: *player, Score: s.sess.Score()})
}

func (s *apiServer) handlePoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}
	var req PointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	outcome := s.sess.SubmitScore(r.Context(), req.Amount)
	status := http.StatusOK
	if outcome == session.ScorePending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, PointsResponse{Outcome: outcome.String(), Score: s.sess.Score()})
}

func (s *apiServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.leaderboard(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []solmate_program.PlayerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.history(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []solmate_program.HistoryEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	return limit, nil
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrTransportFailure):
		status = http.StatusBadGateway
	}
	s.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// serve runs the API until ctx ends.
func (s *apiServer) serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("api listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	return nil
}
