package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"solmate-cli/metrics"
	"solmate-cli/session"
	solmate_program "solmate-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubPeer serves one player account, or nothing when offline.
type stubPeer struct {
	mu      sync.Mutex
	offline bool
	account []byte
}

func (p *stubPeer) LatestBlockhash(context.Context) (*solana.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline {
		return nil, &solmate_program.TransportError{Op: "get latest blockhash", Err: errors.New("connection refused")}
	}
	return &solana.Hash{1}, nil
}

func (p *stubPeer) AccountData(context.Context, solana.PublicKey) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account, nil
}

func (p *stubPeer) Confirm(context.Context, solana.Signature, rpc.CommitmentType) error {
	return nil
}

type stubWallet struct {
	key solana.PrivateKey
}

func (w stubWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w stubWallet) SignAndSend(context.Context, []byte) (*solana.Signature, error) {
	return &solana.Signature{1}, nil
}

func newTestAPI(t *testing.T, peer *stubPeer) (*apiServer, *session.Session) {
	t.Helper()
	log := zaptest.NewLogger(t)
	kp, err := solmate_program.NewKeypair()
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	cfg := session.DefaultConfig()
	cfg.InitSettle, cfg.PointsSettle = 0, 0
	sess := session.New(kp, peer, stubWallet{key: solana.NewWallet().PrivateKey}, log,
		session.WithConfig(cfg),
		session.WithMetrics(metrics.New(registry)))
	t.Cleanup(sess.Close)

	return &apiServer{
		sess: sess,
		leaderboard: func(_ context.Context, limit int) ([]solmate_program.PlayerEntry, error) {
			return []solmate_program.PlayerEntry{{
				Address:       kp.PublicKey(),
				PlayerAccount: solmate_program.PlayerAccount{Name: "Bob", Points: uint64(limit)},
			}}, nil
		},
		history: func(context.Context, int) ([]solmate_program.HistoryEvent, error) {
			return nil, &solmate_program.TransportError{Op: "get signatures for address", Err: errors.New("timeout")}
		},
		registry: registry,
		log:      log,
	}, sess
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIStatus(t *testing.T) {
	t.Parallel()

	api, sess := newTestAPI(t, &stubPeer{offline: true})
	rec := do(t, api.routes(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, sess.PlayerKey(), got.Player)
	require.Equal(t, "unknown", got.Connection)

	rec = do(t, api.routes(), http.MethodPost, "/api/status", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIPlayer(t *testing.T) {
	t.Parallel()

	peer := &stubPeer{account: solmate_program.EncodeAccount(solmate_program.PlayerAccount{Name: "Bob", Points: 100})}
	api, _ := newTestAPI(t, peer)
	h := api.routes()

	rec := do(t, h, http.MethodGet, "/api/player", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/player?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got PlayerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Bob", got.Name)
	require.Equal(t, uint64(100), got.Score)
}

func TestAPIPlayerRefreshOffline(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, &stubPeer{offline: true})
	rec := do(t, api.routes(), http.MethodGet, "/api/player?refresh=true", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPIPoints(t *testing.T) {
	t.Parallel()

	peer := &stubPeer{account: solmate_program.EncodeAccount(solmate_program.PlayerAccount{Name: "Bob", Points: 1})}
	api, sess := newTestAPI(t, peer)
	require.NoError(t, sess.Start(context.Background()))
	h := api.routes()

	rec := do(t, h, http.MethodPost, "/api/points", `{"amount":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/points", `{"amount":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/points", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/points", `{"amount":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got PointsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "confirmed", got.Outcome)
}

func TestAPIPointsOffline(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, &stubPeer{offline: true})
	rec := do(t, api.routes(), http.MethodPost, "/api/points", `{"amount":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got PointsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "failed", got.Outcome)
}

func TestAPILeaderboard(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, &stubPeer{})
	h := api.routes()

	rec := do(t, h, http.MethodGet, "/api/leaderboard?limit=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []solmate_program.PlayerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, uint64(7), got[0].Points)

	rec = do(t, h, http.MethodGet, "/api/leaderboard?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHistoryTransportFailure(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(t, &stubPeer{})
	rec := do(t, api.routes(), http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPIMetrics(t *testing.T) {
	t.Parallel()

	peer := &stubPeer{account: solmate_program.EncodeAccount(solmate_program.PlayerAccount{Name: "Bob", Points: 42})}
	api, sess := newTestAPI(t, peer)
	require.NoError(t, sess.Start(context.Background()))

	rec := do(t, api.routes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "solmate_score 42")
	require.Contains(t, rec.Body.String(), `solmate_account_fetches_total{result="ok"} 1`)
}
