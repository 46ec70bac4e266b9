package solmate_program

import (
	"context"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// PlayerEntry is one player account found on-chain.
type PlayerEntry struct {
	Address solana.PublicKey `json:"address"`
	PlayerAccount
}

// FetchAllPlayers fetches every Player account owned by the program, highest points first.
// A limit <= 0 returns all of them.
func (c *Client) FetchAllPlayers(ctx context.Context, limit int, log *zap.Logger) ([]PlayerEntry, error) {
	resp, err := c.RpcClient.GetProgramAccountsWithOpts(ctx, c.ProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: 0,
					Bytes:  Account_Player[:],
				},
			},
		},
	})
	if err != nil {
		return nil, classify("get program accounts", err)
	}

	players := make([]PlayerEntry, 0, len(resp))
	for _, keyed := range resp {
		if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
			continue
		}
		account, err := DecodeAccount(keyed.Account.Data.GetBinary())
		if err != nil {
			log.Warn("skipping undecodable player account", zap.Stringer("address", keyed.Pubkey), zap.Error(err))
			continue
		}
		players = append(players, PlayerEntry{Address: keyed.Pubkey, PlayerAccount: *account})
	}

	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Points != players[j].Points {
			return players[i].Points > players[j].Points
		}
		return players[i].Name < players[j].Name
	})
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}
