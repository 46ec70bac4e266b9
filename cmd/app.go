package cmd

import (
	"context"
	"errors"
	"fmt"

	"solmate-cli/metrics"
	"solmate-cli/session"
	solmate_program "solmate-cli/solana"
	"solmate-cli/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app is everything one CLI invocation needs, wired from Config.
type app struct {
	cfg      Config
	log      *zap.Logger
	client   *solmate_program.Client
	prefs    storage.Prefs
	identity *storage.IdentityStore
	outcome  storage.LoadOutcome
	feePayer solana.PrivateKey
	session  *session.Session
	registry *prometheus.Registry
	notifier *session.Notifier
}

func newApp(cfg Config, log *zap.Logger) (*app, error) {
	if err := solmate_program.VerifyProgramIDL(); err != nil {
		return nil, fmt.Errorf("failed to verify program IDL: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var opts []solmate_program.ClientOption
	if cfg.RateLimit > 0 {
		opts = append(opts, solmate_program.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, solmate_program.WithPollInterval(cfg.PollInterval))
	}
	client := solmate_program.NewClient(cfg.RpcEndpoint, cfg.Program(), opts...)

	prefs, err := openPrefs(cfg)
	if err != nil {
		return nil, err
	}
	identity := storage.NewIdentityStore(prefs, log)
	kp, outcome := identity.Load()
	m.ObserveIdentityLoad(outcome.String())
	if kp.IsZero() {
		return nil, multierr.Append(errors.New("no player identity could be created"), prefs.Close())
	}

	feePayer, err := loadFeePayer(cfg, log)
	if err != nil {
		return nil, multierr.Append(err, prefs.Close())
	}
	wallet := solmate_program.NewLocalWallet(feePayer, client)

	sess := session.New(kp, client, wallet, log,
		session.WithConfig(cfg.SessionConfig()),
		session.WithSubmitTimeout(cfg.SubmitTimeout),
		session.WithMetrics(m),
		session.WithProgram(solmate_program.NewProgram(cfg.Program())),
	)
	notifier := session.NewNotifier(log)
	sess.Watch(notifier)

	log.Debug("app ready",
		zap.String("endpoint", cfg.Endpoint()),
		zap.Stringer("player", kp.PublicKey()),
		zap.Stringer("wallet", feePayer.PublicKey()),
		zap.Stringer("identity", outcome))

	return &app{
		cfg:      cfg,
		log:      log,
		client:   client,
		prefs:    prefs,
		identity: identity,
		outcome:  outcome,
		feePayer: feePayer,
		session:  sess,
		registry: registry,
		notifier: notifier,
	}, nil
}

func openPrefs(cfg Config) (storage.Prefs, error) {
	switch cfg.PrefsBackend {
	case PrefsSQLite:
		return storage.OpenSQLitePrefs(cfg.PrefsPath)
	case PrefsMemory:
		return storage.NewMemoryPrefs(), nil
	default:
		return storage.OpenJSONPrefs(cfg.PrefsPath)
	}
}

func loadFeePayer(cfg Config, log *zap.Logger) (solana.PrivateKey, error) {
	if cfg.MnemonicPath != "" {
		key, err := solmate_program.LoadWalletFromMnemonic(cfg.MnemonicPath, cfg.MnemonicPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load fee payer mnemonic: %w", err)
		}
		return key, nil
	}
	key, err := solmate_program.LoadOrCreateWallet(cfg.WalletPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee payer wallet: %w", err)
	}
	return key, nil
}

// startupMode selects how much of the session a command needs before it runs.
type startupMode int

const (
	// startLoad probes the cluster and loads the player, creating it when missing.
	startLoad startupMode = iota
	// startProbe only announces the wallet, which probes the cluster. Nothing is
	// fetched or submitted.
	startProbe
)

// start announces the wallet and, in startLoad mode, runs the session's startup load.
func (a *app) start(ctx context.Context, mode startupMode) error {
	a.notifier.Login(ctx, a.feePayer.PublicKey())
	if mode == startProbe {
		if !a.session.Connected() {
			return session.ErrNotConnected
		}
		return nil
	}
	return a.session.Start(ctx)
}

func (a *app) Close() error {
	a.notifier.Logout(context.Background())
	a.session.Close()
	return a.prefs.Close()
}
