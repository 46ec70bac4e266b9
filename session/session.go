// Package session ties a player identity to the game program: it tracks peer
// reachability, submits program instructions and keeps a cached score.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"solmate-cli/metrics"
	solmate_program "solmate-cli/solana"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// defaultSubmitTimeout leaves room for a full confirmation wait plus the
// points settle delay, so SubmitScore still reconciles after a slow confirm.
const defaultSubmitTimeout = 15 * time.Second

var errLoggedOut = errors.New("wallet logged out")

// ScoreOutcome is the result of a gameplay score submission.
type ScoreOutcome int

const (
	ScoreConfirmed ScoreOutcome = iota
	// ScorePending means the transaction was sent but its confirmation is not yet known.
	ScorePending
	ScoreFailed
)

func (o ScoreOutcome) String() string {
	switch o {
	case ScoreConfirmed:
		return "confirmed"
	case ScorePending:
		return "pending"
	default:
		return "failed"
	}
}

type options struct {
	cfg           Config
	submitTimeout time.Duration
	metrics       *metrics.Metrics
	program       *solmate_program.Program
}

type Option func(*options)

func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSubmitTimeout bounds SubmitScore as a whole. A value not above
// ConfirmTimeout plus PointsSettle cuts off reconciliation after slow confirmations.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *options) { o.submitTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithProgram(p *solmate_program.Program) Option {
	return func(o *options) { o.program = p }
}

// Session is one player's view of the game program.
type Session struct {
	identity solmate_program.Keypair
	wallet   Wallet
	conn     *ConnectionState
	orch     *Orchestrator
	log      *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config

	submitTimeout time.Duration
	started       atomic.Bool

	mu     sync.RWMutex
	player *solmate_program.PlayerAccount
	score  uint64
	unsubs []func()
}

func New(identity solmate_program.Keypair, peer Peer, wallet Wallet, log *zap.Logger, opts ...Option) *Session {
	o := options{
		cfg:           DefaultConfig(),
		submitTimeout: defaultSubmitTimeout,
		program:       solmate_program.NewProgram(solmate_program.DefaultProgramID),
	}
	for _, opt := range opts {
		opt(&o)
	}

	log = log.With(zap.Stringer("player", identity.PublicKey()))
	conn := NewConnectionState(peer, log, o.metrics)
	return &Session{
		identity:      identity,
		wallet:        wallet,
		conn:          conn,
		orch:          NewOrchestrator(peer, wallet, conn, o.program, o.cfg, log, o.metrics),
		log:           log.Named("session"),
		metrics:       o.metrics,
		cfg:           o.cfg,
		submitTimeout: o.submitTimeout,
	}
}

// Start probes the peer and, when it is reachable, loads the player account.
func (s *Session) Start(ctx context.Context) error {
	defer s.started.Store(true)
	if !s.conn.Refresh(ctx) {
		s.log.Warn("cluster unreachable at startup")
		return ErrNotConnected
	}
	_, err := s.LoadData(ctx)
	return err
}

func (s *Session) PlayerKey() solana.PublicKey {
	return s.identity.PublicKey()
}

func (s *Session) WalletKey() solana.PublicKey {
	return s.wallet.PublicKey()
}

// Score returns the cached score, including unconfirmed local increments.
func (s *Session) Score() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.score
}

// Player returns a copy of the last fetched account, or nil.
func (s *Session) Player() *solmate_program.PlayerAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.player == nil {
		return nil
	}
	p := *s.player
	return &p
}

func (s *Session) Connected() bool {
	return s.conn.IsConnected()
}

func (s *Session) ConnectionState() ConnState {
	return s.conn.State()
}

func (s *Session) AccountState() AccountState {
	return s.orch.AccountState()
}

// setPlayer replaces the cached account; the chain value overwrites any local increment.
func (s *Session) setPlayer(p *solmate_program.PlayerAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = p
	if p != nil {
		s.score = p.Points
	} else {
		s.score = 0
	}
	s.metrics.SetScore(s.score)
}

func (s *Session) addLocal(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.score += n
	s.metrics.SetScore(s.score)
}

// LoadData fetches the player account, initializing it when missing.
func (s *Session) LoadData(ctx context.Context) (*solmate_program.PlayerAccount, error) {
	player, err := s.orch.FetchAccount(ctx, s.identity)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.setPlayer(nil)
		}
		s.log.Error("failed to load player data", zap.Error(err))
		return nil, err
	}
	s.setPlayer(player)
	s.log.Info("player data loaded", zap.String("name", player.Name), zap.Uint64("points", player.Points))
	return s.Player(), nil
}

// Reconnect probes the peer and reloads the player. It reports whether the peer is reachable afterwards.
func (s *Session) Reconnect(ctx context.Context) bool {
	if !s.conn.Refresh(ctx) {
		s.log.Warn("reconnect failed")
		return false
	}
	if _, err := s.LoadData(ctx); err != nil {
		s.log.Warn("reconnected but could not load player", zap.Error(err))
	}
	return s.conn.IsConnected()
}

// InitializePlayer creates the player account with name and loads it.
func (s *Session) InitializePlayer(ctx context.Context, name string) (*solmate_program.PlayerAccount, error) {
	player, err := s.orch.InitializeThenFetch(ctx, s.identity, name)
	if err != nil {
		return nil, err
	}
	s.setPlayer(player)
	return s.Player(), nil
}

// InitializeProgram submits the program-level Initialize instruction.
func (s *Session) InitializeProgram(ctx context.Context) (*Receipt, error) {
	return s.orch.Submit(ctx, s.orch.Program().Initialize())
}

// AddPoints submits an AddPoints instruction. Once the wallet accepts it the
// cached score is raised right away, unless confirmation failed; the next
// fetch then replaces it with the chain value.
func (s *Session) AddPoints(ctx context.Context, amount uint64) (*Receipt, error) {
	if s.Player() == nil {
		return nil, fmt.Errorf("%w: load the player before adding points", ErrAccountNotFound)
	}

	ix := s.orch.Program().AddPoints(s.identity.PublicKey(), s.wallet.PublicKey(), amount)
	receipt, err := s.orch.Submit(ctx, ix)
	if err != nil {
		return nil, err
	}
	if receipt.Settled() {
		s.addLocal(amount)
	}
	s.reconcile(ctx)
	return receipt, nil
}

// SpendPoints submits a SpendPoints instruction. The cached score only changes on the next fetch.
func (s *Session) SpendPoints(ctx context.Context, amount uint64) (*Receipt, error) {
	if s.Player() == nil {
		return nil, fmt.Errorf("%w: load the player before spending points", ErrAccountNotFound)
	}

	ix := s.orch.Program().SpendPoints(s.identity.PublicKey(), s.wallet.PublicKey(), amount)
	receipt, err := s.orch.Submit(ctx, ix)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx)
	return receipt, nil
}

// reconcile waits for the ledger to settle and refetches. Failures are logged only.
func (s *Session) reconcile(ctx context.Context) {
	if err := s.orch.sleep(ctx, s.cfg.PointsSettle); err != nil {
		s.log.Debug("skipping score reconciliation", zap.Error(err))
		return
	}
	player, err := s.orch.fetchOnce(ctx, s.identity.PublicKey())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.setPlayer(nil)
		}
		s.log.Warn("score reconciliation failed", zap.Error(err))
		return
	}
	s.setPlayer(player)
}

// SubmitScore adds points on behalf of gameplay. It never blocks longer than
// the submit timeout and never fails the caller; the outcome is logged and returned.
func (s *Session) SubmitScore(ctx context.Context, amount uint64) ScoreOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	receipt, err := s.AddPoints(ctx, amount)
	switch {
	case err != nil:
		s.log.Warn("score submission failed", zap.Uint64("amount", amount), zap.Error(err))
		return ScoreFailed
	case receipt.Confirmation == Confirmed:
		return ScoreConfirmed
	case receipt.Confirmation == ConfirmTimedOut:
		s.log.Warn("score submission outcome unknown", zap.Uint64("amount", amount), zap.Stringer("signature", receipt.Signature))
		return ScorePending
	default:
		s.log.Warn("score submission did not confirm", zap.Uint64("amount", amount), zap.Error(receipt.Err))
		return ScoreFailed
	}
}

// Watch subscribes the session to wallet events. The returned function unsubscribes;
// Close also releases every subscription.
func (s *Session) Watch(n *Notifier) (unsubscribe func()) {
	unsub := n.Subscribe(s.onWalletEvent)
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
	return unsub
}

func (s *Session) onWalletEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventLogin:
		s.log.Info("wallet login", zap.Stringer("wallet", ev.PublicKey))
		if !s.conn.Refresh(ctx) {
			return
		}
		// Start loads the player itself.
		if s.started.Load() {
			if _, err := s.LoadData(ctx); err != nil {
				s.log.Warn("could not load player after login", zap.Error(err))
			}
		}
	case EventLogout:
		s.log.Info("wallet logout")
		s.conn.MarkDisconnected(errLoggedOut)
	}
}

// Drain waits for detached confirmations to finish or ctx to end.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases wallet event subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}
