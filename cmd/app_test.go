package cmd

import (
	"context"
	"sync"
	"testing"

	"solmate-cli/session"
	solmate_program "solmate-cli/solana"
	"solmate-cli/storage"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingWallet decodes every transaction it is asked to send. An accepted
// InitializePlayer creates the account on the peer.
type recordingWallet struct {
	mu   sync.Mutex
	key  solana.PrivateKey
	peer *stubPeer
	sent []*solmate_program.DecodedInstruction
}

func (w *recordingWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *recordingWallet) SignAndSend(_ context.Context, txBytes []byte) (*solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, err
	}
	decoded, err := solmate_program.DecodeInstruction(tx.Message.Instructions[0].Data)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.sent = append(w.sent, decoded)
	w.mu.Unlock()

	if decoded.Opcode == solmate_program.OpInitializePlayer {
		w.peer.mu.Lock()
		w.peer.account = solmate_program.EncodeAccount(solmate_program.PlayerAccount{Name: decoded.Name, Authority: w.PublicKey()})
		w.peer.mu.Unlock()
	}
	return &solana.Signature{1}, nil
}

func (w *recordingWallet) instructions() []*solmate_program.DecodedInstruction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*solmate_program.DecodedInstruction(nil), w.sent...)
}

func newTestApp(t *testing.T, peer *stubPeer) (*app, *recordingWallet) {
	t.Helper()
	log := zaptest.NewLogger(t)
	kp, err := solmate_program.NewKeypair()
	require.NoError(t, err)
	wallet := &recordingWallet{key: solana.NewWallet().PrivateKey, peer: peer}

	scfg := session.DefaultConfig()
	scfg.InitSettle, scfg.PointsSettle = 0, 0
	sess := session.New(kp, peer, wallet, log, session.WithConfig(scfg))
	notifier := session.NewNotifier(log)
	sess.Watch(notifier)

	a := &app{
		cfg:      DefaultConfig(),
		log:      log,
		prefs:    storage.NewMemoryPrefs(),
		feePayer: wallet.key,
		session:  sess,
		notifier: notifier,
	}
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a, wallet
}

func TestInitPlayerSendsOnlyRequestedName(t *testing.T) {
	t.Parallel()

	a, wallet := newTestApp(t, &stubPeer{})
	err := runApp(context.Background(), a, startProbe, func(ctx context.Context, a *app) error {
		return initializePlayer(ctx, a, "Alice")
	})
	require.NoError(t, err)

	sent := wallet.instructions()
	require.Len(t, sent, 1)
	require.Equal(t, solmate_program.OpInitializePlayer, sent[0].Opcode)
	require.Equal(t, "Alice", sent[0].Name)
	require.Equal(t, "Alice", a.session.Player().Name)
}

func TestProbeStartupSubmitsNothing(t *testing.T) {
	t.Parallel()

	a, wallet := newTestApp(t, &stubPeer{})
	called := false
	err := runApp(context.Background(), a, startProbe, func(context.Context, *app) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Empty(t, wallet.instructions())
	require.True(t, a.session.Connected())
	require.Nil(t, a.session.Player())
}

func TestProbeStartupOffline(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, &stubPeer{offline: true})
	require.ErrorIs(t, a.start(context.Background(), startProbe), session.ErrNotConnected)
}

func TestLoadStartupInitializesMissingPlayer(t *testing.T) {
	t.Parallel()

	a, wallet := newTestApp(t, &stubPeer{})
	require.NoError(t, a.start(context.Background(), startLoad))

	sent := wallet.instructions()
	require.Len(t, sent, 1)
	require.Equal(t, a.cfg.DefaultName, sent[0].Name)
	require.Equal(t, a.cfg.DefaultName, a.session.Player().Name)
}
