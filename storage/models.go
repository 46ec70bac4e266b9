package storage

// Keys under which the player identity is persisted. They match the names the
// game client has always used, so existing installs keep their identity.
const (
	KeyPrivateKey     = "PLAYER_PRIVATE_KEY"      // base64 of the 64 private key bytes
	KeyPublicKey      = "PLAYER_PUBLIC_KEY"       // base58 text form of the public key
	KeyPublicKeyBytes = "PLAYER_PUBLIC_KEY_BYTES" // base64 of the 32 public key bytes
)

// identityKeys lists every key Reset removes.
var identityKeys = []string{KeyPrivateKey, KeyPublicKey, KeyPublicKeyBytes}
