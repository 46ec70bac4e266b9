package session

import (
	"context"
	"sync"
	"testing"
	"time"

	solmate_program "solmate-cli/solana"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePeer struct {
	mu sync.Mutex

	blockhash      *solana.Hash
	blockhashErr   error
	blockhashCalls int

	accounts     map[solana.PublicKey][]byte
	accountErr   error
	accountCalls int

	confirmErr   error
	confirmBlock chan struct{}
	confirmCalls int
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		blockhash: &solana.Hash{7, 7, 7},
		accounts:  make(map[solana.PublicKey][]byte),
	}
}

func (p *fakePeer) LatestBlockhash(context.Context) (*solana.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockhashCalls++
	return p.blockhash, p.blockhashErr
}

func (p *fakePeer) AccountData(_ context.Context, account solana.PublicKey) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountCalls++
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	return p.accounts[account], nil
}

func (p *fakePeer) Confirm(ctx context.Context, _ solana.Signature, _ rpc.CommitmentType) error {
	p.mu.Lock()
	p.confirmCalls++
	block, err := p.confirmBlock, p.confirmErr
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePeer) setBlockhash(h *solana.Hash, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockhash, p.blockhashErr = h, err
}

func (p *fakePeer) setAccount(key solana.PublicKey, account solmate_program.PlayerAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[key] = solmate_program.EncodeAccount(account)
}

func (p *fakePeer) setRaw(key solana.PublicKey, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[key] = data
}

func (p *fakePeer) counts() (blockhash, account, confirm int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockhashCalls, p.accountCalls, p.confirmCalls
}

type fakeWallet struct {
	mu     sync.Mutex
	key    solana.PrivateKey
	sent   []*solana.Transaction
	reject bool
	err    error
	onSend func(tx *solana.Transaction, ix *solmate_program.DecodedInstruction)
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{key: solana.NewWallet().PrivateKey}
}

func (w *fakeWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w *fakeWallet) SignAndSend(_ context.Context, txBytes []byte) (*solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.sent = append(w.sent, tx)
	reject, sendErr, onSend := w.reject, w.err, w.onSend
	w.mu.Unlock()

	if sendErr != nil {
		return nil, sendErr
	}
	if reject {
		return nil, nil
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if onSend != nil {
		data := tx.Message.Instructions[0].Data
		decoded, err := solmate_program.DecodeInstruction(data)
		if err != nil {
			return nil, err
		}
		onSend(tx, decoded)
	}
	sig := tx.Signatures[0]
	return &sig, nil
}

func (w *fakeWallet) sentInstructions(t *testing.T) []*solmate_program.DecodedInstruction {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*solmate_program.DecodedInstruction
	for _, tx := range w.sent {
		require.Len(t, tx.Message.Instructions, 1)
		decoded, err := solmate_program.DecodeInstruction(tx.Message.Instructions[0].Data)
		require.NoError(t, err)
		out = append(out, decoded)
	}
	return out
}

func (w *fakeWallet) sentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}

func testConfig() Config {
	return Config{
		Commitment:     rpc.CommitmentConfirmed,
		ConfirmTimeout: 2 * time.Second,
		ConfirmLinger:  5 * time.Second,
		DefaultName:    "player",
	}
}

func newTestOrchestrator(t *testing.T, peer *fakePeer, wallet *fakeWallet, cfg Config) *Orchestrator {
	t.Helper()
	log := zaptest.NewLogger(t)
	conn := NewConnectionState(peer, log, nil)
	o := NewOrchestrator(peer, wallet, conn, solmate_program.NewProgram(solmate_program.DefaultProgramID), cfg, log, nil)
	t.Cleanup(o.Wait)
	return o
}

func newIdentity(t *testing.T) solmate_program.Keypair {
	t.Helper()
	kp, err := solmate_program.NewKeypair()
	require.NoError(t, err)
	return kp
}
