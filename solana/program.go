package solmate_program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed Solmate game program on devnet.
var DefaultProgramID = solana.MustPublicKeyFromBase58("3WTnoAppgj8Yn96Em8L1s39ZEkFwYPhVCceJxcoVuT97")

// DiscriminatorLength is the size of an Anchor instruction or account tag.
const DiscriminatorLength = 8

// Discriminator is the fixed 8-byte tag in front of every instruction and account buffer.
type Discriminator [DiscriminatorLength]byte

// Published Anchor discriminators. They must match the program's IDL byte for byte.
var (
	Instruction_Initialize       = Discriminator{175, 175, 109, 31, 13, 152, 155, 237}
	Instruction_InitializePlayer = Discriminator{79, 249, 88, 177, 220, 62, 56, 128}
	Instruction_AddPoints        = Discriminator{59, 82, 226, 114, 188, 88, 181, 51}
	Instruction_SpendPoints      = Discriminator{131, 89, 63, 98, 243, 212, 224, 102}

	Account_Player = Discriminator{205, 222, 112, 7, 165, 155, 206, 218}
)

// Opcode identifies one of the program's instructions.
type Opcode uint8

const (
	OpInitialize Opcode = iota
	OpInitializePlayer
	OpAddPoints
	OpSpendPoints
)

func (op Opcode) String() string {
	switch op {
	case OpInitialize:
		return "initialize"
	case OpInitializePlayer:
		return "initialize_player"
	case OpAddPoints:
		return "add_points"
	case OpSpendPoints:
		return "spend_points"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(op))
	}
}

// Discriminator returns the opcode's instruction tag.
func (op Opcode) Discriminator() (Discriminator, error) {
	switch op {
	case OpInitialize:
		return Instruction_Initialize, nil
	case OpInitializePlayer:
		return Instruction_InitializePlayer, nil
	case OpAddPoints:
		return Instruction_AddPoints, nil
	case OpSpendPoints:
		return Instruction_SpendPoints, nil
	default:
		return Discriminator{}, fmt.Errorf("%w: %s", ErrUnknownInstruction, op)
	}
}

// opcodeFor is the reverse lookup used when decoding instruction data.
func opcodeFor(d Discriminator) (Opcode, bool) {
	switch d {
	case Instruction_Initialize:
		return OpInitialize, true
	case Instruction_InitializePlayer:
		return OpInitializePlayer, true
	case Instruction_AddPoints:
		return OpAddPoints, true
	case Instruction_SpendPoints:
		return OpSpendPoints, true
	}
	return 0, false
}

// Program builds instructions for one deployment of the game program.
type Program struct {
	ID solana.PublicKey
}

// NewProgram returns a builder for the given program id.
func NewProgram(programID solana.PublicKey) *Program {
	return &Program{ID: programID}
}

// Initialize builds the program-level initialize instruction. It takes no accounts.
func (p *Program) Initialize() solana.Instruction {
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{}, EncodeInitialize())
}

// InitializePlayer creates the player account. Both the player account and the
// authority (fee payer) must sign.
func (p *Program) InitializePlayer(playerAccount, authority solana.PublicKey, name string) solana.Instruction {
	return solana.NewInstruction(
		p.ID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(playerAccount, true, true),
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		},
		EncodeInitializePlayer(name),
	)
}

// AddPoints credits the player account. Only the authority signs.
func (p *Program) AddPoints(playerAccount, authority solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		p.ID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(playerAccount, true, false),
			solana.NewAccountMeta(authority, false, true),
		},
		EncodeAddPoints(amount),
	)
}

// SpendPoints debits the player account. Only the authority signs.
func (p *Program) SpendPoints(playerAccount, authority solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		p.ID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(playerAccount, true, false),
			solana.NewAccountMeta(authority, false, true),
		},
		EncodeSpendPoints(amount),
	)
}
