package lending

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramVersion is the only account version this package decodes.
const ProgramVersion = uint8(1)

// Field is one fixed-width region of an account buffer. Decode reads the region
// into the record and Encode writes it back.
type Field[T any] struct {
	Name   string
	Offset int
	Width  int
	Decode func(b []byte, rec *T) error
	Encode func(b []byte, rec *T) error
}

// Layout is the ordered field schema of a fixed-size record.
type Layout[T any] struct {
	Record string
	Size   int
	Fields []Field[T]
}

// mustLayout checks that fields are contiguous and cover exactly size bytes.
// A bad schema is a programming error, so it panics at package init.
func mustLayout[T any](record string, size int, fields ...Field[T]) *Layout[T] {
	offset := 0
	for _, f := range fields {
		if f.Width <= 0 {
			panic(fmt.Sprintf("%s layout: field %s has width %d", record, f.Name, f.Width))
		}
		if f.Decode == nil || f.Encode == nil {
			panic(fmt.Sprintf("%s layout: field %s must decode and encode", record, f.Name))
		}
		if f.Offset != offset {
			panic(fmt.Sprintf("%s layout: field %s at offset %d, want %d", record, f.Name, f.Offset, offset))
		}
		offset += f.Width
	}
	if offset != size {
		panic(fmt.Sprintf("%s layout: fields cover %d bytes, want %d", record, offset, size))
	}
	return &Layout[T]{Record: record, Size: size, Fields: fields}
}

// Field returns the named field of the schema.
func (l *Layout[T]) Field(name string) (Field[T], bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

// Decode parses b into a new record. b must be exactly Size bytes.
func (l *Layout[T]) Decode(b []byte) (*T, error) {
	var rec T
	if err := l.decodeInto(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (l *Layout[T]) decodeInto(b []byte, rec *T) error {
	if len(b) != l.Size {
		return &DecodeError{
			Record: l.Record,
			Err:    fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(b), l.Size),
		}
	}
	for _, f := range l.Fields {
		if err := f.Decode(b[f.Offset:f.Offset+f.Width], rec); err != nil {
			return &DecodeError{Record: l.Record, Field: f.Name, Err: err}
		}
	}
	return nil
}

// Encode packs rec into a new Size-byte buffer.
func (l *Layout[T]) Encode(rec *T) ([]byte, error) {
	b := make([]byte, l.Size)
	if err := l.encodeInto(b, rec); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Layout[T]) encodeInto(b []byte, rec *T) error {
	for _, f := range l.Fields {
		if err := f.Encode(b[f.Offset:f.Offset+f.Width], rec); err != nil {
			return fmt.Errorf("encode %s.%s: %w", l.Record, f.Name, err)
		}
	}
	return nil
}

// writeField runs write against an encoder and copies the output into b,
// which must receive exactly len(b) bytes.
func writeField(b []byte, write func(enc *bin.Encoder) error) error {
	var buf bytes.Buffer
	if err := write(bin.NewBinEncoder(&buf)); err != nil {
		return err
	}
	if buf.Len() != len(b) {
		return fmt.Errorf("wrote %d bytes into %d byte field", buf.Len(), len(b))
	}
	copy(b, buf.Bytes())
	return nil
}

func versionField[T any](ptr func(*T) *uint8) Field[T] {
	return Field[T]{
		Name:   "version",
		Offset: 0,
		Width:  1,
		Decode: func(b []byte, rec *T) error {
			v, err := bin.NewBinDecoder(b).ReadUint8()
			if err != nil {
				return err
			}
			if v != ProgramVersion {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
			}
			*ptr(rec) = v
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			return writeField(b, func(enc *bin.Encoder) error { return enc.WriteUint8(*ptr(rec)) })
		},
	}
}

func u8Field[T any](name string, offset int, ptr func(*T) *uint8) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  1,
		Decode: func(b []byte, rec *T) error {
			v, err := bin.NewBinDecoder(b).ReadUint8()
			if err != nil {
				return err
			}
			*ptr(rec) = v
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			return writeField(b, func(enc *bin.Encoder) error { return enc.WriteUint8(*ptr(rec)) })
		},
	}
}

func u64Field[T any](name string, offset int, ptr func(*T) *uint64) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  8,
		Decode: func(b []byte, rec *T) error {
			v, err := bin.NewBinDecoder(b).ReadUint64(bin.LE)
			if err != nil {
				return err
			}
			*ptr(rec) = v
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			return writeField(b, func(enc *bin.Encoder) error { return enc.WriteUint64(*ptr(rec), bin.LE) })
		},
	}
}

// boolField accepts only 0 and 1, like the program's unpack_bool.
func boolField[T any](name string, offset int, ptr func(*T) *bool) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  1,
		Decode: func(b []byte, rec *T) error {
			v, err := bin.NewBinDecoder(b).ReadUint8()
			if err != nil {
				return err
			}
			switch v {
			case 0:
				*ptr(rec) = false
			case 1:
				*ptr(rec) = true
			default:
				return fmt.Errorf("%w: %d", ErrInvalidBool, v)
			}
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			return writeField(b, func(enc *bin.Encoder) error { return enc.WriteBool(*ptr(rec)) })
		},
	}
}

func pubkeyField[T any](name string, offset int, ptr func(*T) *solana.PublicKey) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  solana.PublicKeyLength,
		Decode: func(b []byte, rec *T) error {
			*ptr(rec) = solana.PublicKeyFromBytes(b)
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			key := ptr(rec)
			copy(b, key[:])
			return nil
		},
	}
}

func bytes32Field[T any](name string, offset int, ptr func(*T) *[32]byte) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  32,
		Decode: func(b []byte, rec *T) error {
			copy(ptr(rec)[:], b)
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			copy(b, ptr(rec)[:])
			return nil
		},
	}
}

func wadField[T any](name string, offset int, ptr func(*T) *Wad) Field[T] {
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  16,
		Decode: func(b []byte, rec *T) error {
			v, err := bin.NewBinDecoder(b).ReadUint128(bin.LE)
			if err != nil {
				return err
			}
			*ptr(rec) = WadFromUint128(v.Lo, v.Hi)
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			lo, hi, ok := ptr(rec).Uint128()
			if !ok {
				return ErrOverflow
			}
			return writeField(b, func(enc *bin.Encoder) error {
				return enc.WriteUint128(bin.Uint128{Lo: lo, Hi: hi}, bin.LE)
			})
		},
	}
}

// rawField keeps a region the program reserves, such as padding, as opaque
// bytes so a decoded record re-encodes to the same buffer. The width is the
// length of the slice ptr returns.
func rawField[T any](name string, offset int, ptr func(*T) []byte) Field[T] {
	var zero T
	return Field[T]{
		Name:   name,
		Offset: offset,
		Width:  len(ptr(&zero)),
		Decode: func(b []byte, rec *T) error {
			copy(ptr(rec), b)
			return nil
		},
		Encode: func(b []byte, rec *T) error {
			copy(b, ptr(rec))
			return nil
		},
	}
}
