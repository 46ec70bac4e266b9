package session

import (
	"errors"

	solmate_program "solmate-cli/solana"
)

var (
	// ErrNotConnected is returned when the peer is unreachable after one liveness refresh.
	ErrNotConnected = errors.New("not connected to the cluster")
	// ErrAccountNotFound means no player account exists at the identity's address.
	ErrAccountNotFound = errors.New("player account not found")
	// ErrTransactionRejected means the signer returned no signature for a submission.
	ErrTransactionRejected = errors.New("transaction rejected by signer")

	// ErrTransportFailure matches any network-level RPC failure.
	ErrTransportFailure = solmate_program.ErrTransport
	// ErrInvalidDiscriminator and ErrTruncatedBuffer are decode failures surfaced unchanged.
	ErrInvalidDiscriminator = solmate_program.ErrInvalidDiscriminator
	ErrTruncatedBuffer      = solmate_program.ErrTruncatedBuffer
)

func isTransport(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}
