package solmate_program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"
)

var (
	// ErrTransport marks failures where the RPC peer could not be reached or did not answer.
	ErrTransport = errors.New("transport failure")
	// ErrTransactionFailed means the cluster reported an execution error for a transaction.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// TransportError wraps a network-level failure of one RPC call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// classify separates JSON-RPC application errors (the node answered) from
// transport failures (it did not).
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return &TransportError{Op: op, Err: err}
}

const defaultPollInterval = 500 * time.Millisecond

// Client talks to the cluster on behalf of the game program.
type Client struct {
	RpcClient    *rpc.Client
	ProgramID    solana.PublicKey
	PollInterval time.Duration
}

type clientOptions struct {
	requestsPerSecond float64
	burst             int
	pollInterval      time.Duration
}

// ClientOption tunes NewClient.
type ClientOption func(*clientOptions)

// WithRateLimit throttles outgoing RPC requests. Public endpoints reject bursts.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(o *clientOptions) {
		o.requestsPerSecond = requestsPerSecond
		o.burst = burst
	}
}

// WithPollInterval sets how often Confirm asks for signature status.
func WithPollInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.pollInterval = d }
}

// NewClient creates a new Client for the given endpoint and program.
func NewClient(rpcEndpoint string, programID solana.PublicKey, opts ...ClientOption) *Client {
	o := clientOptions{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	var rpcClient *rpc.Client
	if o.requestsPerSecond > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		rpcClient = rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(rpcEndpoint, rate.Limit(o.requestsPerSecond), burst))
	} else {
		rpcClient = rpc.New(rpcEndpoint)
	}

	return &Client{
		RpcClient:    rpcClient,
		ProgramID:    programID,
		PollInterval: o.pollInterval,
	}
}

// LatestBlockhash returns the newest blockhash, or nil if the node returned none.
func (c *Client) LatestBlockhash(ctx context.Context) (*solana.Hash, error) {
	out, err := c.RpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, classify("get latest blockhash", err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	hash := out.Value.Blockhash
	return &hash, nil
}

// AccountData returns the raw bytes stored in an account, or nil if the account does not exist.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	resp, err := c.RpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, classify("get account info", err)
	}
	if resp == nil || resp.Value == nil || resp.Value.Data == nil {
		return nil, nil
	}
	data := resp.Value.Data.GetBinary()
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// SendTransaction submits a fully signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.RpcClient.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, classify("send transaction", err)
	}
	return sig, nil
}

var commitmentRank = map[string]int{
	string(rpc.ConfirmationStatusProcessed): 1,
	string(rpc.ConfirmationStatusConfirmed): 2,
	string(rpc.ConfirmationStatusFinalized): 3,
}

// reached reports whether a signature status satisfies the requested commitment.
func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	have, ok := commitmentRank[string(status)]
	if !ok {
		return false
	}
	return have >= commitmentRank[string(commitment)]
}

// Confirm polls the signature status until it reaches the commitment level,
// the transaction reports an error, or ctx ends.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		out, err := c.RpcClient.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return classify("get signature status", err)
		}
		if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
			}
			if reached(status.ConfirmationStatus, commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetBalance retrieves the SOL balance for a given public key.
func (c *Client) GetBalance(ctx context.Context, publicKey solana.PublicKey) (uint64, error) {
	balance, err := c.RpcClient.GetBalance(ctx, publicKey, rpc.CommitmentFinalized)
	if err != nil {
		return 0, classify("get balance", err)
	}
	return balance.Value, nil
}
