package walkingpad

import (
	"errors"
	"fmt"
	"testing"
)

func TestRequestBytes(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		expected string
	}{
		{"QueryState", QueryState(), "0xf7 0xa2 0x00 0x00 0xa2 0xfd"},
		{"QuerySettings", QuerySettings(), "0xf7 0xa6 0x00 0x00 0x00 0x00 0x00 0xa6 0xfd"},
		{"Start", Start(), "0xf7 0xa2 0x04 0x01 0xa7 0xfd"},
		{"Stop", Stop(), "0xf7 0xa2 0x04 0x00 0xa6 0xfd"},
		{"SetSpeed", SetSpeed(25), "0xf7 0xa2 0x01 0x19 0xbc 0xfd"},
		{"SetMode", SetMode(ModeManual), "0xf7 0xa2 0x02 0x01 0xa5 0xfd"},
		{"SetMaxSpeed", SetMaxSpeed(60), "0xf7 0xa6 0x03 0x00 0x00 0x00 0x3c 0xe5 0xfd"},
		{"SetStartSpeed", SetStartSpeed(20), "0xf7 0xa6 0x04 0x00 0x00 0x00 0x14 0xbe 0xfd"},
		{"SetCalibrationMode", SetCalibrationMode(true), "0xf7 0xa6 0x02 0x00 0x00 0x00 0x01 0xa9 0xfd"},
		{"SetAutoStart", SetAutoStart(false), "0xf7 0xa6 0x05 0x00 0x00 0x00 0x00 0xab 0xfd"},
		{"SetSensitivity", SetSensitivity(SensitivityLow), "0xf7 0xa6 0x06 0x00 0x00 0x00 0x03 0xaf 0xfd"},
		{"SetDisplayInfo", SetDisplayInfo(InfoTime | InfoStep), "0xf7 0xa6 0x07 0x00 0x00 0x00 0x11 0xbe 0xfd"},
		{"SetUnits", SetUnits(UnitsImperial), "0xf7 0xa6 0x08 0x00 0x00 0x00 0x01 0xaf 0xfd"},
		{"SetLock", SetLock(true), "0xf7 0xa6 0x09 0x00 0x00 0x00 0x01 0xb0 0xfd"},
		{"FetchLatestStoredRun", FetchLatestStoredRun(), "0xf7 0xa7 0xaa 0xff 0x50 0xfd"},
		{"FetchStoredRun", FetchStoredRun(7), "0xf7 0xa7 0xaa 0x07 0x58 0xfd"},
		{"ClearStoredRuns", ClearStoredRuns(), "0xf7 0xa7 0xaa 0x00 0x51 0xfd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fmt.Sprintf("% 0#x", tt.req.Bytes())
			if result != tt.expected {
				t.Fatalf("Fail:\n%v\n%v", result, tt.expected)
			}
		})
	}
}

func TestRequestChecksum(t *testing.T) {
	reqs := []Request{
		QueryState(), QuerySettings(), Start(), Stop(), SetSpeed(MaxSpeed),
		SetMode(ModeCalibration), SetMaxSpeed(MaxSpeed), SetStartSpeed(DefaultSpeed),
		SetCalibrationMode(false), SetAutoStart(true), SetSensitivity(SensitivityHigh),
		SetDisplayInfo(InfoAll), SetUnits(UnitsMetric), SetLock(false),
		FetchLatestStoredRun(), FetchStoredRun(3), ClearStoredRuns(),
	}
	for _, r := range reqs {
		b := r.Bytes()
		if len(b) != 5+r.Width() {
			t.Fatalf("%v: bad length %d", r, len(b))
		}
		if b[0] != RequestHeader || b[len(b)-1] != Footer {
			t.Fatalf("%v: bad framing % 0#x", r, b)
		}
		var sum byte
		for _, v := range b[1 : len(b)-2] {
			sum += v
		}
		if b[len(b)-2] != sum {
			t.Fatalf("%v: checksum 0x%02x, want 0x%02x", r, b[len(b)-2], sum)
		}
	}
}

func TestChecksumWraps(t *testing.T) {
	if got := Checksum([]byte{0xff, 0x02}); got != 0x01 {
		t.Fatalf("Bad checksum %v", got)
	}
	// from the old protocol crate: subject 0xa2, code 8, param 1
	if got := Checksum([]byte{0xa2, 8, 1}); got != 171 {
		t.Fatalf("Bad checksum %v", got)
	}
}

func TestRequestAliasing(t *testing.T) {
	// same code, different subjects
	if Start().Code() != SetStartSpeed(1).Code() {
		t.Fatal("start and set start speed should share code 4")
	}
	if Start() == SetStartSpeed(1) {
		t.Fatal("start and set start speed must differ")
	}
	if SetMode(ModeAuto).Code() != SetCalibrationMode(false).Code() {
		t.Fatal("set mode and set calibration should share code 2")
	}
	if FetchStoredRun(0) != ClearStoredRuns() {
		t.Fatal("fetch id 0 is the clear frame")
	}
	if FetchLatestStoredRun().Param() != 255 {
		t.Fatalf("Bad latest id %d", FetchLatestStoredRun().Param())
	}
}

func TestParseRequest(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, r := range []Request{QueryState(), SetMaxSpeed(42), SetLock(true), FetchStoredRun(9)} {
			got, err := ParseRequest(r.Bytes())
			if err != nil {
				t.Fatalf("Failed to parse %v: %s", r, err)
			}
			if got != r {
				t.Fatalf("Fail:\n%v\n%v", got, r)
			}
		}
	})
	t.Run("BadChecksum", func(t *testing.T) {
		b := Start().Bytes()
		b[4]++
		if _, err := ParseRequest(b); !errors.Is(err, ErrInvalidChecksum) {
			t.Fatalf("Expected checksum error, got %v", err)
		}
	})
	t.Run("ResponseHeader", func(t *testing.T) {
		b := Start().Bytes()
		b[0] = ResponseHeader
		if _, err := ParseRequest(b); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("Expected header error, got %v", err)
		}
	})
	t.Run("Truncated", func(t *testing.T) {
		b := QuerySettings().Bytes()
		if _, err := ParseRequest(b[:5]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("Expected truncation, got %v", err)
		}
	})
	t.Run("Trailing", func(t *testing.T) {
		b := append(Stop().Bytes(), 0x00)
		if _, err := ParseRequest(b); !errors.Is(err, ErrTrailingBytes) {
			t.Fatalf("Expected trailing bytes, got %v", err)
		}
	})
}
