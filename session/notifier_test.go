package session

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNotifierDeliversInOrder(t *testing.T) {
	t.Parallel()

	n := NewNotifier(zaptest.NewLogger(t))
	var got []string
	n.Subscribe(func(_ context.Context, ev Event) { got = append(got, "a:"+ev.Kind.String()) })
	n.Subscribe(func(_ context.Context, ev Event) { got = append(got, "b:"+ev.Kind.String()) })

	n.Login(context.Background(), solana.NewWallet().PublicKey())
	n.Logout(context.Background())

	require.Equal(t, []string{"a:login", "b:login", "a:logout", "b:logout"}, got)
}

func TestNotifierUnsubscribe(t *testing.T) {
	t.Parallel()

	n := NewNotifier(zaptest.NewLogger(t))
	calls := 0
	unsubscribe := n.Subscribe(func(context.Context, Event) { calls++ })
	keep := n.Subscribe(func(context.Context, Event) {})
	require.Equal(t, 2, n.Len())

	unsubscribe()
	unsubscribe()
	require.Equal(t, 1, n.Len())

	n.Logout(context.Background())
	require.Zero(t, calls)

	keep()
	require.Zero(t, n.Len())
}

func TestNotifierListenerMayUnsubscribeItself(t *testing.T) {
	t.Parallel()

	n := NewNotifier(zaptest.NewLogger(t))
	calls := 0
	var unsubscribe func()
	unsubscribe = n.Subscribe(func(context.Context, Event) {
		calls++
		unsubscribe()
	})

	n.Logout(context.Background())
	n.Logout(context.Background())
	require.Equal(t, 1, calls)
}
