package solmate_program

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, classify("op", nil))

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := classify("get latest blockhash", netErr)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, netErr)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "get latest blockhash", transportErr.Op)

	err = classify("send transaction", &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTransport)

	err = classify("get account info", context.Canceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTransport)

	err = classify("get account info", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrTransport)
}

func TestReached(t *testing.T) {
	t.Parallel()

	require.False(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	require.True(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	require.True(t, reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	require.False(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	require.False(t, reached("", rpc.CommitmentProcessed))
}
