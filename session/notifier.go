package session

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type EventKind int

const (
	EventLogin EventKind = iota
	EventLogout
)

func (k EventKind) String() string {
	if k == EventLogin {
		return "login"
	}
	return "logout"
}

// Event is a wallet login or logout.
type Event struct {
	Kind EventKind
	// PublicKey is the wallet that logged in; zero on logout.
	PublicKey solana.PublicKey
}

type Listener func(ctx context.Context, ev Event)

// Notifier fans wallet login and logout events out to subscribers.
// Listeners run synchronously in subscription order.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
	log       *zap.Logger
}

func NewNotifier(log *zap.Logger) *Notifier {
	return &Notifier{listeners: make(map[uint64]Listener), log: log.Named("notifier")}
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is safe.
func (n *Notifier) Subscribe(l Listener) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.order = append(n.order, id)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners, id)
			for i, v := range n.order {
				if v == id {
					n.order = append(n.order[:i], n.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

func (n *Notifier) Login(ctx context.Context, wallet solana.PublicKey) {
	n.publish(ctx, Event{Kind: EventLogin, PublicKey: wallet})
}

func (n *Notifier) Logout(ctx context.Context) {
	n.publish(ctx, Event{Kind: EventLogout})
}

func (n *Notifier) publish(ctx context.Context, ev Event) {
	n.mu.Lock()
	snapshot := make([]Listener, 0, len(n.order))
	for _, id := range n.order {
		snapshot = append(snapshot, n.listeners[id])
	}
	n.mu.Unlock()

	n.log.Debug("publishing wallet event", zap.Stringer("kind", ev.Kind), zap.Int("listeners", len(snapshot)))
	for _, l := range snapshot {
		l(ctx, ev)
	}
}
