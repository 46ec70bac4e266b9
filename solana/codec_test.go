package solmate_program

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddPoints(t *testing.T) {
	t.Parallel()

	got := EncodeAddPoints(42)

	want := append(Instruction_AddPoints[:], 0x2A, 0, 0, 0, 0, 0, 0, 0)
	require.Equal(t, want, got)
}

func TestEncodeSpendPoints(t *testing.T) {
	t.Parallel()

	got := EncodeSpendPoints(0x0102030405060708)

	want := append(Instruction_SpendPoints[:], 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01)
	require.Equal(t, want, got)
}

func TestEncodeInitializePlayer(t *testing.T) {
	t.Parallel()

	got := EncodeInitializePlayer("Al")

	want := append(Instruction_InitializePlayer[:], 0x02, 0x00, 0x00, 0x00, 'A', 'l')
	require.Equal(t, want, got)
	require.Len(t, got, 14)
}

func TestEncodeInitializePlayerMultiByteName(t *testing.T) {
	t.Parallel()

	name := "Zoë"
	got := EncodeInitializePlayer(name)

	require.Equal(t, Instruction_InitializePlayer[:], got[:8])
	require.Equal(t, uint32(len(name)), binary.LittleEndian.Uint32(got[8:12]))
	require.Equal(t, []byte(name), got[12:])
}

func TestEncodeInitialize(t *testing.T) {
	t.Parallel()

	require.Equal(t, Instruction_Initialize[:], EncodeInitialize())
}

func TestDecodeAccountBob(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = append(raw, Account_Player[:]...)
	raw = append(raw, 0x03, 0x00, 0x00, 0x00)
	raw = append(raw, "Bob"...)
	raw = binary.LittleEndian.AppendUint64(raw, 100)
	raw = append(raw, make([]byte, 32)...)

	account, err := DecodeAccount(raw)
	require.NoError(t, err)
	require.Equal(t, "Bob", account.Name)
	require.Equal(t, uint64(100), account.Points)
	require.True(t, account.Authority.IsZero())
}

func TestAccountRoundTrip(t *testing.T) {
	t.Parallel()

	authority := solana.NewWallet().PublicKey()
	tests := []struct {
		name    string
		account PlayerAccount
	}{
		{name: "ascii", account: PlayerAccount{Name: "player", Points: 7, Authority: authority}},
		{name: "empty", account: PlayerAccount{Name: "", Points: 0, Authority: authority}},
		{name: "multiByte", account: PlayerAccount{Name: "プレイヤー🎮", Points: 1 << 40, Authority: authority}},
		{name: "maxPoints", account: PlayerAccount{Name: "max", Points: ^uint64(0), Authority: solana.PublicKey{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := EncodeAccount(tt.account)
			require.Len(t, raw, 8+4+len(tt.account.Name)+8+32)

			got, err := DecodeAccount(raw)
			require.NoError(t, err)
			require.Equal(t, tt.account, *got)
		})
	}
}

func TestDecodeAccountRejectsEveryFlippedDiscriminatorBit(t *testing.T) {
	t.Parallel()

	valid := EncodeAccount(PlayerAccount{Name: "Bob", Points: 100})
	for bit := 0; bit < DiscriminatorLength*8; bit++ {
		raw := bytes.Clone(valid)
		raw[bit/8] ^= 1 << (bit % 8)

		_, err := DecodeAccount(raw)
		require.ErrorIsf(t, err, ErrInvalidDiscriminator, "bit %d", bit)
	}
}

func TestDecodeAccountRejectsInstructionTag(t *testing.T) {
	t.Parallel()

	raw := EncodeAccount(PlayerAccount{Name: "Bob"})
	copy(raw, Instruction_AddPoints[:])

	_, err := DecodeAccount(raw)
	require.ErrorIs(t, err, ErrInvalidDiscriminator)
}

func TestDecodeAccountTruncation(t *testing.T) {
	t.Parallel()

	raw := EncodeAccount(PlayerAccount{Name: "truncate-me", Points: 9, Authority: solana.NewWallet().PublicKey()})
	for n := 0; n < len(raw); n++ {
		require.NotPanics(t, func() {
			_, err := DecodeAccount(raw[:n])
			require.ErrorIsf(t, err, ErrTruncatedBuffer, "length %d", n)
		})
	}
}

func TestDecodeAccountHugeDeclaredLength(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = append(raw, Account_Player[:]...)
	raw = append(raw, 0xFF, 0xFF, 0xFF, 0xFF)
	raw = append(raw, "short"...)

	_, err := DecodeAccount(raw)
	require.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestDecodeAccountInvalidUTF8(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = append(raw, Account_Player[:]...)
	raw = append(raw, 0x02, 0x00, 0x00, 0x00, 0xC3, 0x28)
	raw = binary.LittleEndian.AppendUint64(raw, 1)
	raw = append(raw, make([]byte, 32)...)

	_, err := DecodeAccount(raw)
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDecodeAccountIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	// Accounts are allocated with spare space; bytes after the authority are padding.
	raw := append(EncodeAccount(PlayerAccount{Name: "Bob", Points: 3}), make([]byte, 100)...)

	got, err := DecodeAccount(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.Points)
}

func TestDecodeInstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want DecodedInstruction
	}{
		{name: "initialize", data: EncodeInitialize(), want: DecodedInstruction{Opcode: OpInitialize}},
		{name: "initializePlayer", data: EncodeInitializePlayer("Al"), want: DecodedInstruction{Opcode: OpInitializePlayer, Name: "Al"}},
		{name: "addPoints", data: EncodeAddPoints(42), want: DecodedInstruction{Opcode: OpAddPoints, Amount: 42}},
		{name: "spendPoints", data: EncodeSpendPoints(5), want: DecodedInstruction{Opcode: OpSpendPoints, Amount: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeInstruction(tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.want, *got)
		})
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeInstruction(Account_Player[:])
	require.ErrorIs(t, err, ErrUnknownInstruction)

	_, err = DecodeInstruction(EncodeAddPoints(1)[:12])
	require.ErrorIs(t, err, ErrTruncatedBuffer)

	_, err = DecodeInstruction(nil)
	require.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestOpcodeDiscriminator(t *testing.T) {
	t.Parallel()

	for _, op := range []Opcode{OpInitialize, OpInitializePlayer, OpAddPoints, OpSpendPoints} {
		d, err := op.Discriminator()
		require.NoError(t, err)
		back, ok := opcodeFor(d)
		require.True(t, ok)
		require.Equal(t, op, back)
	}

	_, err := Opcode(99).Discriminator()
	require.ErrorIs(t, err, ErrUnknownInstruction)
}
