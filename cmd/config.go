package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"solmate-cli/session"
	solmate_program "solmate-cli/solana"

	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	defaultRpcEndpoint = "https://api.devnet.solana.com"
	heliusEndpointFmt  = "https://devnet.helius-rpc.com/?api-key=%s"
	configFileEnv      = "SOLMATE_CONFIG_FILE"
)

// Prefs backends.
const (
	PrefsJSON   = "json"
	PrefsSQLite = "sqlite"
	PrefsMemory = "memory"
)

// Config is built from defaults, then an optional YAML file, then the environment.
type Config struct {
	RpcEndpoint  string `yaml:"rpcEndpoint" env:"SOLMATE_RPC_ENDPOINT"`
	HeliusAPIKey string `yaml:"-" env:"HELIUS_API_KEY"`
	ProgramID    string `yaml:"programId" env:"SOLMATE_PROGRAM_ID"`

	RateLimit    float64       `yaml:"rateLimit" env:"SOLMATE_RPC_RATE_LIMIT"`
	RateBurst    int           `yaml:"rateBurst" env:"SOLMATE_RPC_RATE_BURST"`
	PollInterval time.Duration `yaml:"pollInterval" env:"SOLMATE_POLL_INTERVAL"`

	PrefsBackend string `yaml:"prefsBackend" env:"SOLMATE_PREFS_BACKEND"`
	PrefsPath    string `yaml:"prefsPath" env:"SOLMATE_PREFS_PATH"`

	WalletPath         string `yaml:"walletPath" env:"SOLMATE_WALLET_PATH"`
	MnemonicPath       string `yaml:"mnemonicPath" env:"SOLMATE_MNEMONIC_PATH"`
	MnemonicPassphrase string `yaml:"-" env:"SOLMATE_MNEMONIC_PASSPHRASE"`

	Commitment     string        `yaml:"commitment" env:"SOLMATE_COMMITMENT"`
	ConfirmTimeout time.Duration `yaml:"confirmTimeout" env:"SOLMATE_CONFIRM_TIMEOUT"`
	ConfirmLinger  time.Duration `yaml:"confirmLinger" env:"SOLMATE_CONFIRM_LINGER"`
	SubmitTimeout  time.Duration `yaml:"submitTimeout" env:"SOLMATE_SUBMIT_TIMEOUT"`
	InitSettle     time.Duration `yaml:"initSettle" env:"SOLMATE_INIT_SETTLE"`
	PointsSettle   time.Duration `yaml:"pointsSettle" env:"SOLMATE_POINTS_SETTLE"`
	DefaultName    string        `yaml:"defaultName" env:"SOLMATE_DEFAULT_NAME"`

	ListenAddr string `yaml:"listenAddr" env:"SOLMATE_LISTEN_ADDR"`
	LogLevel   string `yaml:"logLevel" env:"SOLMATE_LOG_LEVEL"`
	LogFormat  string `yaml:"logFormat" env:"SOLMATE_LOG_FORMAT"`
}

func DefaultConfig() Config {
	sc := session.DefaultConfig()
	return Config{
		RpcEndpoint:    defaultRpcEndpoint,
		ProgramID:      solmate_program.DefaultProgramID.String(),
		RateBurst:      1,
		PollInterval:   500 * time.Millisecond,
		PrefsBackend:   PrefsJSON,
		Commitment:     string(sc.Commitment),
		ConfirmTimeout: sc.ConfirmTimeout,
		ConfirmLinger:  sc.ConfirmLinger,
		SubmitTimeout:  15 * time.Second,
		InitSettle:     sc.InitSettle,
		PointsSettle:   sc.PointsSettle,
		DefaultName:    sc.DefaultName,
		ListenAddr:     "localhost:8088",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// LoadConfig reads .env (if present), the YAML file named by SOLMATE_CONFIG_FILE
// (if set) and the environment, in that order of increasing precedence.
func LoadConfig() (Config, error) {
	// A missing .env file is normal.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv(configFileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.HeliusAPIKey != "" && cfg.RpcEndpoint == defaultRpcEndpoint {
		cfg.RpcEndpoint = fmt.Sprintf(heliusEndpointFmt, cfg.HeliusAPIKey)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if c.RpcEndpoint == "" {
		errs = append(errs, errors.New("rpc endpoint is empty"))
	}
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("invalid program id %q: %w", c.ProgramID, err))
	}
	switch c.PrefsBackend {
	case PrefsJSON, PrefsSQLite, PrefsMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown prefs backend %q", c.PrefsBackend))
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("unsupported commitment %q", c.Commitment))
	}
	if c.ConfirmTimeout <= 0 || c.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.SubmitTimeout <= c.ConfirmTimeout+c.PointsSettle {
		errs = append(errs, errors.New("submit timeout must be longer than confirm timeout plus points settle"))
	}
	if c.ConfirmLinger < c.ConfirmTimeout {
		errs = append(errs, errors.New("confirm linger must not be shorter than confirm timeout"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Program returns the parsed program id. Validate has already checked it.
func (c Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		Commitment:     rpc.CommitmentType(c.Commitment),
		ConfirmTimeout: c.ConfirmTimeout,
		ConfirmLinger:  c.ConfirmLinger,
		InitSettle:     c.InitSettle,
		PointsSettle:   c.PointsSettle,
		DefaultName:    c.DefaultName,
	}
}

// Endpoint returns the RPC URL with any API key elided, for display.
func (c Config) Endpoint() string {
	if i := strings.Index(c.RpcEndpoint, "?"); i >= 0 {
		return c.RpcEndpoint[:i]
	}
	return c.RpcEndpoint
}

// NewLogger builds the process logger from the log level and format.
func NewLogger(c Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zc zap.Config
	switch c.LogFormat {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// Keep stdout for the interactive UI.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
