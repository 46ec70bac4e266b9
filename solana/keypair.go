package solmate_program

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidKeyMaterial is returned when key bytes cannot form a valid keypair.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// Keypair is a player identity: a 64-byte private key (seed || public) and its 32-byte public key.
type Keypair struct {
	private solana.PrivateKey
	public  solana.PublicKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (Keypair, error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	return Keypair{private: privateKey, public: privateKey.PublicKey()}, nil
}

// KeypairFromBytes rebuilds a keypair from its raw private and public key bytes.
// The public key must match the one derived from the private key's seed.
func KeypairFromBytes(privateKeyBytes, publicKeyBytes []byte) (Keypair, error) {
	if len(privateKeyBytes) != solana.PrivateKeyLength {
		return Keypair{}, fmt.Errorf("%w: private key length %d, expected %d", ErrInvalidKeyMaterial, len(privateKeyBytes), solana.PrivateKeyLength)
	}
	if len(publicKeyBytes) != solana.PublicKeyLength {
		return Keypair{}, fmt.Errorf("%w: public key length %d, expected %d", ErrInvalidKeyMaterial, len(publicKeyBytes), solana.PublicKeyLength)
	}

	derived := ed25519.NewKeyFromSeed(privateKeyBytes[:ed25519.SeedSize])
	if !bytes.Equal(derived, privateKeyBytes) {
		return Keypair{}, fmt.Errorf("%w: private key does not match its seed", ErrInvalidKeyMaterial)
	}
	if !bytes.Equal(derived[ed25519.SeedSize:], publicKeyBytes) {
		return Keypair{}, fmt.Errorf("%w: public key does not belong to private key", ErrInvalidKeyMaterial)
	}

	privateKey := make(solana.PrivateKey, solana.PrivateKeyLength)
	copy(privateKey, privateKeyBytes)
	return Keypair{private: privateKey, public: solana.PublicKeyFromBytes(publicKeyBytes)}, nil
}

// KeypairFromPrivateKey wraps an existing solana private key.
func KeypairFromPrivateKey(privateKey solana.PrivateKey) (Keypair, error) {
	if len(privateKey) != solana.PrivateKeyLength {
		return Keypair{}, fmt.Errorf("%w: private key length %d, expected %d", ErrInvalidKeyMaterial, len(privateKey), solana.PrivateKeyLength)
	}
	return KeypairFromBytes(privateKey, privateKey[ed25519.SeedSize:])
}

// PublicKey returns the keypair's public key.
func (k Keypair) PublicKey() solana.PublicKey {
	return k.public
}

// PrivateKey returns a copy of the private key bytes.
func (k Keypair) PrivateKey() solana.PrivateKey {
	out := make(solana.PrivateKey, len(k.private))
	copy(out, k.private)
	return out
}

// IsZero reports whether the keypair was never initialized.
func (k Keypair) IsZero() bool {
	return len(k.private) == 0
}

// Getter returns a signer lookup suitable for Transaction.PartialSign.
func (k Keypair) Getter() func(solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if k.public.Equals(key) {
			privateKey := k.PrivateKey()
			return &privateKey
		}
		return nil
	}
}
