package solmate_program

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgramIDLMatchesConstants(t *testing.T) {
	t.Parallel()

	idl, err := ProgramIDL()
	require.NoError(t, err)
	require.Equal(t, DefaultProgramID.String(), idl.Address)

	instructions := map[string]Discriminator{
		"initialize":        Instruction_Initialize,
		"initialize_player": Instruction_InitializePlayer,
		"add_points":        Instruction_AddPoints,
		"spend_points":      Instruction_SpendPoints,
	}
	for name, want := range instructions {
		got, ok := idl.InstructionDiscriminator(name)
		require.Truef(t, ok, "instruction %s missing from IDL", name)
		require.Equalf(t, want, got, "instruction %s", name)
	}

	got, ok := idl.AccountDiscriminator("Player")
	require.True(t, ok)
	require.Equal(t, Account_Player, got)

	_, ok = idl.InstructionDiscriminator("withdraw")
	require.False(t, ok)
}

func TestVerifyProgramIDL(t *testing.T) {
	t.Parallel()

	require.NoError(t, VerifyProgramIDL())
}

func TestIDLVerifyReportsMismatch(t *testing.T) {
	t.Parallel()

	idl, err := ParseIDL(idlJSON)
	require.NoError(t, err)
	idl.Instructions[0].Discriminator = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	idl.Accounts = nil

	err = idl.Verify()
	require.ErrorIs(t, err, ErrIDLMismatch)
	require.Contains(t, err.Error(), idl.Instructions[0].Name)
	require.Contains(t, err.Error(), "account Player not found")
}

func TestParseIDLRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseIDL([]byte("{not json"))
	require.Error(t, err)
}
