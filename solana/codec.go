package solmate_program

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInvalidDiscriminator means the buffer's leading 8 bytes are not the expected tag.
	ErrInvalidDiscriminator = errors.New("invalid discriminator")
	// ErrTruncatedBuffer means a field would be read past the end of the buffer.
	ErrTruncatedBuffer = errors.New("truncated buffer")
	// ErrInvalidName means the player name bytes are not valid UTF-8.
	ErrInvalidName = errors.New("player name is not valid utf-8")
	// ErrUnknownInstruction means the instruction tag is not one of the program's opcodes.
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// PlayerAccount is the decoded on-chain player record.
type PlayerAccount struct {
	Name      string           `json:"name"`
	Points    uint64           `json:"points"`
	Authority solana.PublicKey `json:"authority"`
}

// DecodedInstruction is an instruction payload read back from raw instruction data.
type DecodedInstruction struct {
	Opcode Opcode
	Name   string // InitializePlayer only
	Amount uint64 // AddPoints and SpendPoints only
}

// encode writes the discriminator followed by whatever fill appends.
// Writes to a bytes.Buffer cannot fail, so an error here is a programming bug.
func encode(d Discriminator, fill func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	buf.Write(d[:])
	if fill != nil {
		if err := fill(bin.NewBorshEncoder(buf)); err != nil {
			panic(fmt.Sprintf("encode into memory buffer: %v", err))
		}
	}
	return buf.Bytes()
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

// EncodeInitialize returns the initialize instruction data: the bare discriminator.
func EncodeInitialize() []byte {
	return encode(Instruction_Initialize, nil)
}

// EncodeInitializePlayer returns discriminator || len[4] || utf8 name.
func EncodeInitializePlayer(name string) []byte {
	return encode(Instruction_InitializePlayer, func(enc *bin.Encoder) error {
		return writeString(enc, name)
	})
}

// EncodeAddPoints returns discriminator || amount[8].
func EncodeAddPoints(amount uint64) []byte {
	return encode(Instruction_AddPoints, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, binary.LittleEndian)
	})
}

// EncodeSpendPoints returns discriminator || amount[8].
func EncodeSpendPoints(amount uint64) []byte {
	return encode(Instruction_SpendPoints, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, binary.LittleEndian)
	})
}

// EncodeAccount serializes a player record the way the program stores it.
func EncodeAccount(account PlayerAccount) []byte {
	return encode(Account_Player, func(enc *bin.Encoder) error {
		if err := writeString(enc, account.Name); err != nil {
			return err
		}
		if err := enc.WriteUint64(account.Points, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteBytes(account.Authority[:], false)
	})
}

// reader bounds-checks every read so that short buffers fail with ErrTruncatedBuffer.
type reader struct {
	dec *bin.Decoder
	off int
}

func newReader(data []byte) *reader {
	return &reader{dec: bin.NewBorshDecoder(data)}
}

func (r *reader) need(n uint64, field string) error {
	if uint64(r.dec.Remaining()) < n {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, %d remaining", ErrTruncatedBuffer, field, n, r.off, r.dec.Remaining())
	}
	return nil
}

func (r *reader) readBytes(n uint64, field string) ([]byte, error) {
	if err := r.need(n, field); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	out, err := r.dec.ReadNBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTruncatedBuffer, field, err)
	}
	r.off += int(n)
	return out, nil
}

func (r *reader) readUint32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v, err := r.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTruncatedBuffer, field, err)
	}
	r.off += 4
	return v, nil
}

func (r *reader) readUint64(field string) (uint64, error) {
	if err := r.need(8, field); err != nil {
		return 0, err
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTruncatedBuffer, field, err)
	}
	r.off += 8
	return v, nil
}

func (r *reader) readDiscriminator() (Discriminator, error) {
	var d Discriminator
	raw, err := r.readBytes(DiscriminatorLength, "discriminator")
	if err != nil {
		return d, err
	}
	copy(d[:], raw)
	return d, nil
}

func (r *reader) readString(field string) (string, error) {
	length, err := r.readUint32(field + " length")
	if err != nil {
		return "", err
	}
	raw, err := r.readBytes(uint64(length), field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, field)
	}
	return string(raw), nil
}

// DecodeAccount parses raw player account storage.
func DecodeAccount(data []byte) (*PlayerAccount, error) {
	r := newReader(data)

	d, err := r.readDiscriminator()
	if err != nil {
		return nil, err
	}
	if d != Account_Player {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrInvalidDiscriminator, d[:], Account_Player[:])
	}

	name, err := r.readString("name")
	if err != nil {
		return nil, err
	}
	points, err := r.readUint64("points")
	if err != nil {
		return nil, err
	}
	authority, err := r.readBytes(solana.PublicKeyLength, "authority")
	if err != nil {
		return nil, err
	}

	return &PlayerAccount{
		Name:      name,
		Points:    points,
		Authority: solana.PublicKeyFromBytes(authority),
	}, nil
}

// DecodeInstruction parses instruction data produced by the Encode* functions.
func DecodeInstruction(data []byte) (*DecodedInstruction, error) {
	r := newReader(data)

	d, err := r.readDiscriminator()
	if err != nil {
		return nil, err
	}
	op, ok := opcodeFor(d)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownInstruction, d[:])
	}

	out := &DecodedInstruction{Opcode: op}
	switch op {
	case OpInitializePlayer:
		if out.Name, err = r.readString("name"); err != nil {
			return nil, err
		}
	case OpAddPoints, OpSpendPoints:
		if out.Amount, err = r.readUint64("amount"); err != nil {
			return nil, err
		}
	}
	return out, nil
}
