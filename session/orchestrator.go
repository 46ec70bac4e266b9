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
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Peer is the remote cluster as the orchestrator sees it. Absent values are
// returned as nil with a nil error.
type Peer interface {
	Prober
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error
}

// Wallet is the external signer that pays fees and sends transactions.
// A nil signature with a nil error means the wallet declined.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignAndSend(ctx context.Context, txBytes []byte) (*solana.Signature, error)
}

// Confirmation is the terminal state of a submitted transaction as far as the caller knows.
type Confirmation int

const (
	Confirmed Confirmation = iota
	ConfirmTimedOut
	ConfirmFailed
)

func (c Confirmation) String() string {
	switch c {
	case Confirmed:
		return "confirmed"
	case ConfirmTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Receipt describes a transaction the wallet accepted.
type Receipt struct {
	Signature    solana.Signature
	Confirmation Confirmation
	// Err is set when Confirmation is ConfirmFailed.
	Err error
}

// Settled reports whether the caller may treat the submission as forward progress.
func (r *Receipt) Settled() bool {
	return r.Confirmation != ConfirmFailed
}

// AccountState is the lifecycle of one fetch of the player account.
type AccountState int32

const (
	AccountUninitialized AccountState = iota
	AccountFetching
	AccountReady
	AccountNotFoundPendingInit
	AccountInitializing
	AccountError
)

func (s AccountState) String() string {
	switch s {
	case AccountUninitialized:
		return "uninitialized"
	case AccountFetching:
		return "fetching"
	case AccountReady:
		return "ready"
	case AccountNotFoundPendingInit:
		return "not_found_pending_init"
	case AccountInitializing:
		return "initializing"
	default:
		return "error"
	}
}

// Config holds the orchestration timings.
type Config struct {
	Commitment rpc.CommitmentType
	// ConfirmTimeout bounds how long Submit waits for confirmation.
	ConfirmTimeout time.Duration
	// ConfirmLinger bounds how long an abandoned confirmation keeps polling in the background.
	ConfirmLinger time.Duration
	// InitSettle is the pause between InitializePlayer and the follow-up fetch.
	InitSettle time.Duration
	// PointsSettle is the pause between a points change and the follow-up fetch.
	PointsSettle time.Duration
	DefaultName  string
}

func DefaultConfig() Config {
	return Config{
		Commitment:     rpc.CommitmentConfirmed,
		ConfirmTimeout: 10 * time.Second,
		ConfirmLinger:  60 * time.Second,
		InitSettle:     5 * time.Second,
		PointsSettle:   2 * time.Second,
		DefaultName:    "player",
	}
}

// Orchestrator builds, signs, sends and confirms program transactions and
// fetches the player account, initializing it once when it does not exist.
type Orchestrator struct {
	peer    Peer
	wallet  Wallet
	conn    *ConnectionState
	program *solmate_program.Program
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	state    atomic.Int32
	detached sync.WaitGroup
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(peer Peer, wallet Wallet, conn *ConnectionState, program *solmate_program.Program, cfg Config, log *zap.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		peer:    peer,
		wallet:  wallet,
		conn:    conn,
		program: program,
		cfg:     cfg,
		log:     log.Named("orchestrator"),
		metrics: m,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Program returns the instruction builder bound to the orchestrator's program id.
func (o *Orchestrator) Program() *solmate_program.Program {
	return o.program
}

// AccountState returns the state of the most recent fetch.
func (o *Orchestrator) AccountState() AccountState {
	return AccountState(o.state.Load())
}

func (o *Orchestrator) setState(s AccountState) {
	prev := AccountState(o.state.Swap(int32(s)))
	if prev != s {
		o.log.Debug("account state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Wait blocks until every detached confirmation has finished.
func (o *Orchestrator) Wait() {
	o.detached.Wait()
}

func (o *Orchestrator) ensureConnected(ctx context.Context) error {
	if o.conn.IsConnected() || o.conn.Refresh(ctx) {
		return nil
	}
	return ErrNotConnected
}

// fail records a transport failure in the connection state and returns err unchanged.
// Failures caused by the caller's own context ending say nothing about the peer.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	if isTransport(err) && ctx.Err() == nil {
		o.conn.MarkDisconnected(err)
	}
	return err
}

func instructionName(ix solana.Instruction) string {
	data, err := ix.Data()
	if err != nil {
		return "unknown"
	}
	decoded, err := solmate_program.DecodeInstruction(data)
	if err != nil {
		return "unknown"
	}
	return decoded.Opcode.String()
}

// Submit sends ix with the wallet as fee payer. signers sign locally before the
// wallet adds its own signature. The returned error is non-nil only when the
// transaction was never accepted; confirmation problems are reported in the Receipt.
func (o *Orchestrator) Submit(ctx context.Context, ix solana.Instruction, signers ...solmate_program.Keypair) (*Receipt, error) {
	name := instructionName(ix)
	log := o.log.With(zap.String("instruction", name))

	if err := o.ensureConnected(ctx); err != nil {
		o.metrics.ObserveTransaction(name, metrics.ResultNotConnected)
		return nil, err
	}

	blockhash, err := o.peer.LatestBlockhash(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.conn.MarkDisconnected(err)
		}
		o.metrics.ObserveTransaction(name, metrics.ResultNotConnected)
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if blockhash == nil {
		o.conn.MarkDisconnected(errors.New("no blockhash returned"))
		o.metrics.ObserveTransaction(name, metrics.ResultNotConnected)
		return nil, fmt.Errorf("%w: no blockhash returned", ErrNotConnected)
	}

	raw, err := o.buildTransaction(ix, *blockhash, signers)
	if err != nil {
		o.metrics.ObserveTransaction(name, metrics.ResultError)
		return nil, err
	}

	sig, err := o.wallet.SignAndSend(ctx, raw)
	if err != nil {
		o.metrics.ObserveTransaction(name, metrics.ResultError)
		return nil, fmt.Errorf("failed to send %s: %w", name, o.fail(ctx, err))
	}
	if sig == nil {
		o.metrics.ObserveTransaction(name, metrics.ResultRejected)
		return nil, fmt.Errorf("%w: %s", ErrTransactionRejected, name)
	}
	log.Info("transaction sent", zap.Stringer("signature", sig))

	receipt := o.confirm(ctx, *sig, log)
	switch receipt.Confirmation {
	case Confirmed:
		o.metrics.ObserveTransaction(name, metrics.ResultConfirmed)
	case ConfirmTimedOut:
		o.metrics.ObserveTransaction(name, metrics.ResultTimedOut)
	default:
		o.metrics.ObserveTransaction(name, metrics.ResultFailed)
	}
	return receipt, nil
}

func (o *Orchestrator) buildTransaction(ix solana.Instruction, blockhash solana.Hash, signers []solmate_program.Keypair) ([]byte, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(o.wallet.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if len(signers) > 0 {
		_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			for _, signer := range signers {
				if signer.PublicKey().Equals(key) {
					return signer.Getter()(key)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return raw, nil
}

// confirm waits up to ConfirmTimeout for the signature to reach the configured
// commitment. On timeout the poll keeps running detached, bounded by ConfirmLinger,
// and its eventual outcome is only logged.
func (o *Orchestrator) confirm(ctx context.Context, sig solana.Signature, log *zap.Logger) *Receipt {
	start := time.Now()
	done := make(chan error, 1)
	var abandoned atomic.Bool

	pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ConfirmLinger)
	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		defer cancel()
		err := o.peer.Confirm(pollCtx, sig, o.cfg.Commitment)
		done <- err
		if abandoned.Load() {
			if err != nil {
				log.Warn("detached confirmation ended without success", zap.Stringer("signature", sig), zap.Error(err))
			} else {
				o.metrics.ObserveConfirmation(time.Since(start))
				log.Info("detached confirmation succeeded", zap.Stringer("signature", sig), zap.Duration("after", time.Since(start)))
			}
		}
	}()

	timer := time.NewTimer(o.cfg.ConfirmTimeout)
	defer timer.Stop()

	var reason string
	select {
	case err := <-done:
		if err != nil {
			log.Error("confirmation failed", zap.Stringer("signature", sig), zap.Error(err))
			return &Receipt{Signature: sig, Confirmation: ConfirmFailed, Err: o.fail(pollCtx, err)}
		}
		o.metrics.ObserveConfirmation(time.Since(start))
		log.Info("transaction confirmed", zap.Stringer("signature", sig), zap.Duration("after", time.Since(start)))
		return &Receipt{Signature: sig, Confirmation: Confirmed}
	case <-timer.C:
		reason = "timeout"
	case <-ctx.Done():
		reason = "caller gave up"
	}

	abandoned.Store(true)
	// The poll may have finished between the timer firing and the flag being set.
	select {
	case err := <-done:
		if err == nil {
			return &Receipt{Signature: sig, Confirmation: Confirmed}
		}
		return &Receipt{Signature: sig, Confirmation: ConfirmFailed, Err: o.fail(pollCtx, err)}
	default:
	}
	log.Warn("confirmation outcome unknown, continuing",
		zap.Stringer("signature", sig),
		zap.String("reason", reason),
		zap.Duration("waited", time.Since(start)))
	return &Receipt{Signature: sig, Confirmation: ConfirmTimedOut}
}

// fetchOnce reads and decodes the player account with no fallback.
func (o *Orchestrator) fetchOnce(ctx context.Context, account solana.PublicKey) (*solmate_program.PlayerAccount, error) {
	if err := o.ensureConnected(ctx); err != nil {
		o.metrics.ObserveFetch(metrics.FetchError)
		return nil, err
	}

	data, err := o.peer.AccountData(ctx, account)
	if err != nil {
		o.metrics.ObserveFetch(metrics.FetchError)
		return nil, fmt.Errorf("failed to fetch player account %s: %w", account, o.fail(ctx, err))
	}
	if data == nil {
		o.metrics.ObserveFetch(metrics.FetchNotFound)
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}

	player, err := solmate_program.DecodeAccount(data)
	if err != nil {
		o.metrics.ObserveFetch(metrics.FetchDecode)
		return nil, fmt.Errorf("failed to decode player account %s: %w", account, err)
	}
	o.metrics.ObserveFetch(metrics.FetchOK)
	return player, nil
}

// FetchAccount reads the identity's player account. When the account does not
// exist it is initialized with the default name and fetched exactly once more.
func (o *Orchestrator) FetchAccount(ctx context.Context, identity solmate_program.Keypair) (*solmate_program.PlayerAccount, error) {
	o.setState(AccountFetching)
	player, err := o.fetchOnce(ctx, identity.PublicKey())
	if err == nil {
		o.setState(AccountReady)
		return player, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		o.setState(AccountError)
		return nil, err
	}

	o.setState(AccountNotFoundPendingInit)
	o.log.Info("player account not found, initializing",
		zap.Stringer("player", identity.PublicKey()),
		zap.String("name", o.cfg.DefaultName))

	player, initErr := o.InitializeThenFetch(ctx, identity, o.cfg.DefaultName)
	if initErr != nil {
		return nil, multierr.Combine(err, initErr)
	}
	return player, nil
}

// InitializeThenFetch creates the player account with the given name, waits for
// the ledger to settle and fetches it once.
func (o *Orchestrator) InitializeThenFetch(ctx context.Context, identity solmate_program.Keypair, name string) (*solmate_program.PlayerAccount, error) {
	o.setState(AccountInitializing)
	ix := o.program.InitializePlayer(identity.PublicKey(), o.wallet.PublicKey(), name)
	receipt, err := o.Submit(ctx, ix, identity)
	if err != nil {
		o.setState(AccountError)
		return nil, fmt.Errorf("failed to initialize player: %w", err)
	}
	if receipt.Confirmation == ConfirmFailed {
		o.log.Warn("initialize player did not confirm, fetching anyway", zap.Error(receipt.Err))
	}

	if err := o.sleep(ctx, o.cfg.InitSettle); err != nil {
		o.setState(AccountError)
		return nil, err
	}

	o.setState(AccountFetching)
	player, err := o.fetchOnce(ctx, identity.PublicKey())
	if err != nil {
		o.setState(AccountError)
		return nil, err
	}
	o.setState(AccountReady)
	return player, nil
}
