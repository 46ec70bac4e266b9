package solmate_program

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

const (
	defaultConfigDirName = ".config"
	solmateConfigDirName = "solmate"
	walletFileName       = "wallet.json"
)

// ErrInvalidMnemonic is returned when a mnemonic file does not hold a valid BIP-39 phrase.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Sender is the part of Client a wallet needs to broadcast transactions.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// LocalWallet is the fee payer and program authority. It signs with a key held in memory.
type LocalWallet struct {
	PrivateKey solana.PrivateKey
	sender     Sender
}

// NewLocalWallet binds a fee payer key to a transaction sender.
func NewLocalWallet(privateKey solana.PrivateKey, sender Sender) *LocalWallet {
	return &LocalWallet{PrivateKey: privateKey, sender: sender}
}

// PublicKey returns the public key of the wallet.
func (w *LocalWallet) PublicKey() solana.PublicKey {
	return w.PrivateKey.PublicKey()
}

// SignAndSend decodes a serialized transaction, adds the fee payer signature and sends it.
// Signatures already present (e.g. the player account's) are preserved.
func (w *LocalWallet) SignAndSend(ctx context.Context, txBytes []byte) (*solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	if !tx.IsSigner(w.PublicKey()) {
		return nil, fmt.Errorf("wallet %s is not a signer of the transaction", w.PublicKey())
	}

	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if w.PublicKey().Equals(key) {
			return &w.PrivateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("transaction is missing signatures: %w", err)
	}

	sig, err := w.sender.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sig.IsZero() {
		return nil, nil
	}
	return &sig, nil
}

// LoadOrCreateWallet loads a fee payer key from a JSON keypair file (the
// solana-keygen format), or creates a new one if it doesn't exist.
func LoadOrCreateWallet(walletPath string, log *zap.Logger) (solana.PrivateKey, error) {
	if walletPath == "" {
		var err error
		walletPath, err = DefaultWalletPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get wallet path: %w", err)
		}
	}

	if _, err := os.Stat(walletPath); os.IsNotExist(err) {
		log.Info("no existing wallet found, creating a new one", zap.String("path", walletPath))
		return createNewWallet(walletPath, log)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check for wallet file: %w", err)
	}

	log.Debug("loading existing wallet", zap.String("path", walletPath))
	return loadWalletFromFile(walletPath)
}

// LoadWalletFromMnemonic derives the fee payer from a BIP-39 phrase stored in a file.
// The first 32 bytes of the BIP-39 seed are the ed25519 seed, as `solana-keygen recover` does
// without a derivation path.
func LoadWalletFromMnemonic(path, passphrase string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mnemonic file: %w", err)
	}
	mnemonic := strings.Join(strings.Fields(string(raw)), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w in %s", ErrInvalidMnemonic, path)
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])), nil
}

func createNewWallet(path string, log *zap.Logger) (solana.PrivateKey, error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}

	if err := saveWalletToFile(privateKey, path); err != nil {
		return nil, fmt.Errorf("failed to save new wallet: %w", err)
	}

	log.Info("new wallet created", zap.Stringer("address", privateKey.PublicKey()))
	return privateKey, nil
}

func loadWalletFromFile(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}

	var privateKeyBytes []byte
	if err := json.Unmarshal(data, &privateKeyBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet file: %w", err)
	}

	// Rejects wrong lengths and files whose public half does not match the seed.
	kp, err := KeypairFromPrivateKey(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet file %s: %w", path, err)
	}
	return kp.PrivateKey(), nil
}

func saveWalletToFile(privateKey solana.PrivateKey, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create wallet directory: %w", err)
	}

	// solana-keygen writes the key as a JSON array of numbers, not base64.
	numbers := make([]int, len(privateKey))
	for i, b := range privateKey {
		numbers[i] = int(b)
	}
	data, err := json.Marshal(numbers)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	return nil
}

// DefaultWalletPath returns e.g. /home/user/.config/solmate/wallet.json
func DefaultWalletPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultConfigDirName, solmateConfigDirName, walletFileName), nil
}
