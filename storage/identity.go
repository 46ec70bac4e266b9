package storage

import (
	"bytes"
	"encoding/base64"
	"fmt"

	solmate_program "solmate-cli/solana"

	"github.com/mr-tron/base58"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LoadOutcome records which branch IdentityStore.Load took.
type LoadOutcome int

const (
	// LoadRestored: the persisted identity was read back intact.
	LoadRestored LoadOutcome = iota
	// LoadCreatedMissing: a required blob was absent; a new identity was created and saved.
	LoadCreatedMissing
	// LoadCreatedUndecodable: a blob was not valid base64 or was empty; a new identity was created and saved.
	LoadCreatedUndecodable
	// LoadCreatedMalformed: the bytes decoded but do not form a keypair; a new identity was created and saved.
	LoadCreatedMalformed
	// LoadEphemeral: the store itself failed; a new identity is in use but was not saved.
	LoadEphemeral
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadRestored:
		return "restored"
	case LoadCreatedMissing:
		return "created_missing"
	case LoadCreatedUndecodable:
		return "created_undecodable"
	case LoadCreatedMalformed:
		return "created_malformed"
	case LoadEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Persisted reports whether the returned identity is backed by the store.
func (o LoadOutcome) Persisted() bool {
	return o != LoadEphemeral
}

// IdentityStore persists the player keypair in a Prefs store.
type IdentityStore struct {
	prefs    Prefs
	log      *zap.Logger
	generate func() (solmate_program.Keypair, error)
}

// NewIdentityStore returns a store reading and writing through prefs.
func NewIdentityStore(prefs Prefs, log *zap.Logger) *IdentityStore {
	return &IdentityStore{
		prefs:    prefs,
		log:      log.Named("identity"),
		generate: solmate_program.NewKeypair,
	}
}

// Load restores the persisted identity. It never fails: every failure branch
// maps to exactly one recovery action and the outcome says which was taken.
// When not even an ephemeral key can be generated, the Keypair is zero and the
// outcome is LoadEphemeral; callers check IsZero.
func (s *IdentityStore) Load() (kp solmate_program.Keypair, outcome LoadOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("unexpected failure while loading identity", zap.Any("panic", r))
			kp, outcome = s.ephemeral(), LoadEphemeral
		}
	}()

	privateB64, hasPrivate, err := s.prefs.Get(KeyPrivateKey)
	if err != nil {
		s.log.Error("could not read private key", zap.Error(err))
		return s.ephemeral(), LoadEphemeral
	}
	publicB64, hasPublic, err := s.prefs.Get(KeyPublicKeyBytes)
	if err != nil {
		s.log.Error("could not read public key", zap.Error(err))
		return s.ephemeral(), LoadEphemeral
	}

	if !hasPrivate || !hasPublic {
		s.log.Info("saved keys not found, creating new identity")
		return s.CreateNew(), LoadCreatedMissing
	}

	privateBytes, err := decodeBlob(privateB64)
	if err != nil {
		s.log.Warn("stored private key is undecodable, creating new identity", zap.Error(err))
		return s.CreateNew(), LoadCreatedUndecodable
	}
	publicBytes, err := decodeBlob(publicB64)
	if err != nil {
		s.log.Warn("stored public key is undecodable, creating new identity", zap.Error(err))
		return s.CreateNew(), LoadCreatedUndecodable
	}

	kp, err = solmate_program.KeypairFromBytes(privateBytes, publicBytes)
	if err != nil {
		s.log.Warn("stored keys do not form a keypair, creating new identity", zap.Error(err))
		return s.CreateNew(), LoadCreatedMalformed
	}

	s.checkPublicKeyText(kp)
	s.log.Debug("loaded existing identity", zap.Stringer("public_key", kp.PublicKey()))
	return kp, LoadRestored
}

func decodeBlob(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty key blob")
	}
	return raw, nil
}

// checkPublicKeyText repairs the informational text form when it disagrees with the bytes.
// The bytes are authoritative.
func (s *IdentityStore) checkPublicKeyText(kp solmate_program.Keypair) {
	public := kp.PublicKey()
	text, ok, err := s.prefs.Get(KeyPublicKey)
	if err != nil {
		s.log.Warn("could not read public key text", zap.Error(err))
		return
	}
	if ok {
		if decoded, err := base58.Decode(text); err == nil && bytes.Equal(decoded, public[:]) {
			return
		}
	}
	s.log.Warn("public key text out of sync with key bytes, rewriting", zap.String("stored", text))
	if err := multierr.Append(s.prefs.Set(KeyPublicKey, public.String()), s.prefs.Save()); err != nil {
		s.log.Warn("could not rewrite public key text", zap.Error(err))
	}
}

// Save persists kp under the three identity keys.
func (s *IdentityStore) Save(kp solmate_program.Keypair) error {
	public := kp.PublicKey()
	err := multierr.Combine(
		s.prefs.Set(KeyPrivateKey, base64.StdEncoding.EncodeToString(kp.PrivateKey())),
		s.prefs.Set(KeyPublicKey, base58.Encode(public[:])),
		s.prefs.Set(KeyPublicKeyBytes, base64.StdEncoding.EncodeToString(public[:])),
	)
	if err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	if err := s.prefs.Save(); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// CreateNew generates a fresh identity and persists it. A failed save is
// logged; the in-memory identity is still returned and usable.
func (s *IdentityStore) CreateNew() solmate_program.Keypair {
	kp := s.mustGenerate()
	if err := s.Save(kp); err != nil {
		s.log.Error("failed to persist new identity", zap.Stringer("public_key", kp.PublicKey()), zap.Error(err))
		return kp
	}
	s.log.Info("created new identity", zap.Stringer("public_key", kp.PublicKey()))
	return kp
}

// Reset removes the persisted identity. The next Load creates a new one.
func (s *IdentityStore) Reset() error {
	var err error
	for _, key := range identityKeys {
		err = multierr.Append(err, s.prefs.Delete(key))
	}
	err = multierr.Append(err, s.prefs.Save())
	if err != nil {
		return fmt.Errorf("failed to reset identity: %w", err)
	}
	return nil
}

// ephemeral never panics, since it also runs inside Load's recover. If no key
// can be generated it returns the zero Keypair.
func (s *IdentityStore) ephemeral() solmate_program.Keypair {
	kp, err := s.generate()
	if err != nil {
		s.log.Error("could not generate an identity", zap.Error(err))
		return solmate_program.Keypair{}
	}
	s.log.Warn("using unsaved identity for this session", zap.Stringer("public_key", kp.PublicKey()))
	return kp
}

// mustGenerate panics only if the system random source fails, which Go treats as fatal anyway.
func (s *IdentityStore) mustGenerate() solmate_program.Keypair {
	kp, err := s.generate()
	if err != nil {
		panic(fmt.Sprintf("generate keypair: %v", err))
	}
	return kp
}
