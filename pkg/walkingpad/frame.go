package walkingpad

import (
	"errors"
	"fmt"
)

// Frame decode errors
var (
	ErrInvalidHeader   = errors.New("invalid header")
	ErrInvalidSubject  = errors.New("invalid subject")
	ErrTruncated       = errors.New("frame is missing bytes")
	ErrInvalidFooter   = errors.New("invalid footer")
	ErrTrailingBytes   = errors.New("frame continues past footer")
	ErrInvalidChecksum = errors.New("checksum does not validate")
)

// reader walks a frame front to back. It never reads past the end of buf
// and never modifies it.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// u24 reads the pad's 3 byte big endian counters into the low bits of a
// uint32. The pad never sends 4 byte integers.
func (r *reader) u24() (uint32, error) {
	b, err := r.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (r *reader) opaque4() ([4]byte, error) {
	var out [4]byte
	b, err := r.take(4)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// footer checks the footer byte and that nothing follows it
func (r *reader) footer() error {
	f, err := r.u8()
	if err != nil {
		return err
	}
	if f != Footer {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidFooter, f)
	}
	if rest := len(r.buf) - r.off; rest > 0 {
		return fmt.Errorf("%w: %d extra", ErrTrailingBytes, rest)
	}
	return nil
}

// put24 is the inverse of reader.u24, anything above 24 bits is dropped
func put24(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>16), byte(v>>8), byte(v))
}
