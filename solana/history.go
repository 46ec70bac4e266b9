package solmate_program

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxHistoryLimit    = 1000 // Maximum allowed by Solana RPC
	historyConcurrency = 10
)

// HistoryEvent is one program instruction found in the player's transaction history.
type HistoryEvent struct {
	Signature solana.Signature `json:"signature"`
	Timestamp time.Time        `json:"timestamp"`
	Type      string           `json:"type"`
	Name      string           `json:"name,omitempty"`
	Amount    uint64           `json:"amount,omitempty"`
	Failed    bool             `json:"failed,omitempty"`
}

// GetHistory fetches recent transactions touching the player account and decodes
// the game program instructions they carry, newest first.
func (c *Client) GetHistory(ctx context.Context, player solana.PublicKey, limit int, log *zap.Logger) ([]HistoryEvent, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	signatures, err := c.RpcClient.GetSignaturesForAddressWithOpts(ctx, player, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, classify("get signatures for address", err)
	}

	var (
		mu     sync.Mutex
		events = make([]HistoryEvent, 0, len(signatures))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)
	for _, sigInfo := range signatures {
		g.Go(func() error {
			version := uint64(0)
			tx, err := c.RpcClient.GetTransaction(gctx, sigInfo.Signature, &rpc.GetTransactionOpts{
				Encoding:                       solana.EncodingBase64,
				Commitment:                     rpc.CommitmentConfirmed,
				MaxSupportedTransactionVersion: &version,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				// One unreadable transaction should not hide the rest of the history.
				log.Warn("failed to fetch transaction", zap.Stringer("signature", sigInfo.Signature), zap.Error(err))
				return nil
			}

			found := c.programEvents(tx, sigInfo)
			mu.Lock()
			events = append(events, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}

// programEvents decodes the top-level instructions addressed to the game program.
func (c *Client) programEvents(result *rpc.GetTransactionResult, sigInfo *rpc.TransactionSignature) []HistoryEvent {
	if result == nil || result.Transaction == nil {
		return nil
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil
	}

	timestamp := time.Now()
	if result.BlockTime != nil {
		timestamp = result.BlockTime.Time()
	}
	failed := result.Meta != nil && result.Meta.Err != nil

	var events []HistoryEvent
	for _, ix := range tx.Message.Instructions {
		programID, err := tx.Message.ResolveProgramIDIndex(ix.ProgramIDIndex)
		if err != nil || !programID.Equals(c.ProgramID) {
			continue
		}
		decoded, err := DecodeInstruction(ix.Data)
		if err != nil {
			continue
		}
		events = append(events, HistoryEvent{
			Signature: sigInfo.Signature,
			Timestamp: timestamp,
			Type:      decoded.Opcode.String(),
			Name:      decoded.Name,
			Amount:    decoded.Amount,
			Failed:    failed,
		})
	}
	return events
}
