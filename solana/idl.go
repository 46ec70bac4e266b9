package solmate_program

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrIDLMismatch means a built-in discriminator disagrees with the program IDL.
var ErrIDLMismatch = errors.New("program IDL mismatch")

// IDL is the subset of an Anchor IDL the client reads.
type IDL struct {
	Address      string           `json:"address"`
	Metadata     IDLMetadata      `json:"metadata"`
	Instructions []IDLInstruction `json:"instructions"`
	Accounts     []IDLAccountType `json:"accounts"`
	Types        []IDLTypeDef     `json:"types"`
}

type IDLMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type IDLInstruction struct {
	Name          string       `json:"name"`
	Discriminator []byte       `json:"discriminator"`
	Accounts      []IDLAccount `json:"accounts"`
	Args          []IDLField   `json:"args"`
}

type IDLAccount struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
}

type IDLAccountType struct {
	Name          string `json:"name"`
	Discriminator []byte `json:"discriminator"`
}

type IDLField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type IDLTypeDef struct {
	Name string `json:"name"`
	Type struct {
		Kind   string     `json:"kind"`
		Fields []IDLField `json:"fields"`
	} `json:"type"`
}

//go:embed solmate.json
var idlJSON []byte

var (
	idlOnce sync.Once
	idlErr  error
	idlData *IDL
)

// ParseIDL decodes an Anchor IDL document.
func ParseIDL(idlBytes []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(idlBytes, &idl); err != nil {
		return nil, fmt.Errorf("error unmarshalling IDL JSON: %w", err)
	}
	return &idl, nil
}

// ProgramIDL returns the embedded program IDL, parsed once.
func ProgramIDL() (*IDL, error) {
	idlOnce.Do(func() {
		idlData, idlErr = ParseIDL(idlJSON)
	})
	return idlData, idlErr
}

// VerifyProgramIDL checks the built-in discriminators against the embedded IDL.
func VerifyProgramIDL() error {
	idl, err := ProgramIDL()
	if err != nil {
		return err
	}
	return idl.Verify()
}

// Verify reports every opcode or account tag that is missing from idl or differs from it.
func (idl *IDL) Verify() error {
	var errs []error
	for _, op := range []Opcode{OpInitialize, OpInitializePlayer, OpAddPoints, OpSpendPoints} {
		want, err := op.Discriminator()
		if err != nil {
			return err
		}
		got, ok := idl.InstructionDiscriminator(op.String())
		if !ok {
			errs = append(errs, fmt.Errorf("%w: instruction %s not found", ErrIDLMismatch, op))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Errorf("%w: instruction %s is %v, expected %v", ErrIDLMismatch, op, got, want))
		}
	}
	got, ok := idl.AccountDiscriminator("Player")
	switch {
	case !ok:
		errs = append(errs, fmt.Errorf("%w: account Player not found", ErrIDLMismatch))
	case got != Account_Player:
		errs = append(errs, fmt.Errorf("%w: account Player is %v, expected %v", ErrIDLMismatch, got, Account_Player))
	}
	return errors.Join(errs...)
}

// InstructionDiscriminator looks up an instruction tag by its IDL name.
func (idl *IDL) InstructionDiscriminator(name string) (Discriminator, bool) {
	for _, ix := range idl.Instructions {
		if ix.Name == name {
			return toDiscriminator(ix.Discriminator)
		}
	}
	return Discriminator{}, false
}

// AccountDiscriminator looks up an account tag by its IDL name.
func (idl *IDL) AccountDiscriminator(name string) (Discriminator, bool) {
	for _, acc := range idl.Accounts {
		if acc.Name == name {
			return toDiscriminator(acc.Discriminator)
		}
	}
	return Discriminator{}, false
}

func toDiscriminator(raw []byte) (Discriminator, bool) {
	var d Discriminator
	if len(raw) != DiscriminatorLength {
		return d, false
	}
	copy(d[:], raw)
	return d, true
}
