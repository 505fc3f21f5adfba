package walkingpad

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng logs the seed so failures can be reproduced with FUZZ_SEED
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

var decodeErrors = []error{
	ErrInvalidHeader, ErrInvalidSubject, ErrTruncated,
	ErrInvalidFooter, ErrTrailingBytes, ErrInvalidValue,
}

func isDecodeError(err error) bool {
	for _, e := range decodeErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func TestFuzzParseResponseRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		buf := make([]byte, rng.Intn(32))
		rng.Read(buf)
		// bias towards getting past the header
		if len(buf) > 1 && rng.Intn(2) == 0 {
			buf[0] = ResponseHeader
			buf[1] = []byte{0xa2, 0xa6, 0xa7}[rng.Intn(3)]
		}
		r, err := ParseResponse(buf)
		if err != nil && !isDecodeError(err) {
			t.Fatalf("Untyped error for % 0#x: %v", buf, err)
		}
		if err == nil && r == nil {
			t.Fatalf("Nil response without error for % 0#x", buf)
		}
	}
}

func TestFuzzParseResponseTruncation(t *testing.T) {
	frames := [][]byte{stateFrame, settingsFrame, storedFrame}
	for _, f := range frames {
		for n := 2; n < len(f); n++ {
			_, err := ParseResponse(f[:n])
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("Prefix of %d bytes: expected truncation, got %v", n, err)
			}
		}
	}
}

func TestFuzzParseResponseHeader(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		buf := make([]byte, 1+rng.Intn(24))
		rng.Read(buf)
		if buf[0] == ResponseHeader {
			buf[0]++
		}
		if _, err := ParseResponse(buf); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("Expected header error for % 0#x, got %v", buf, err)
		}
	}
}

func TestFuzzParseRequest(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		buf := make([]byte, rng.Intn(12))
		rng.Read(buf)
		if len(buf) > 0 {
			buf[0] = RequestHeader
		}
		// must not panic
		_, _ = ParseRequest(buf)
	}
}
