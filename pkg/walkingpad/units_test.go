package walkingpad

import (
	"errors"
	"testing"
)

func TestSpeed(t *testing.T) {
	t.Run("Clamp", func(t *testing.T) {
		for n := 0; n <= 255; n++ {
			s := SpeedFromHmPerHour(uint8(n))
			expected := n
			if n > MaxSpeed {
				expected = MaxSpeed
			}
			if int(s) != expected {
				t.Fatalf("SpeedFromHmPerHour(%d) = %d", n, s)
			}
		}
	})
	t.Run("Fallible", func(t *testing.T) {
		if s, err := NewSpeed(60); err != nil || s != 60 {
			t.Fatalf("Bad speed %v %v", s, err)
		}
		_, err := NewSpeed(61)
		var se *SpeedError
		if !errors.As(err, &se) || se.HmPerHour != 61 {
			t.Fatalf("Expected speed error, got %v", err)
		}
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("Speed error should wrap ErrInvalidValue")
		}
	})
	t.Run("Kmh", func(t *testing.T) {
		tests := map[float64]Speed{0: 0, -1: 0, 2.5: 25, 2.54: 25, 2.56: 26, 6: 60, 7: 60}
		for kmh, expected := range tests {
			if s := SpeedFromKmh(kmh); s != expected {
				t.Fatalf("SpeedFromKmh(%v) = %v, want %v", kmh, s, expected)
			}
		}
	})
	t.Run("Saturate", func(t *testing.T) {
		if s := Speed(10).Add(55); s != 60 {
			t.Fatalf("Bad sum %v", s)
		}
		if s := Speed(10).Sub(55); s != 0 {
			t.Fatalf("Bad difference %v", s)
		}
		if s := Speed(60).AddHm(255); s != 60 {
			t.Fatalf("Bad sum %v", s)
		}
		if s := Speed(30).SubHm(5); s != 25 {
			t.Fatalf("Bad difference %v", s)
		}
	})
	t.Run("String", func(t *testing.T) {
		if s := DefaultSpeed.String(); s != "2.0 km/h" {
			t.Fatalf("Bad string %q", s)
		}
	})
}

func TestEnumCodes(t *testing.T) {
	for _, b := range []byte{0, 1, 2, 4} {
		if m, err := ModeFromCode(b); err != nil || byte(m) != b {
			t.Fatalf("Bad mode %d: %v", b, err)
		}
	}
	if _, err := ModeFromCode(3); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Mode 3 should be invalid, got %v", err)
	}
	if _, err := SensitivityFromCode(4); err == nil {
		t.Fatal("Sensitivity 4 should be invalid")
	}
	if _, err := UnitsFromCode(1); err != nil {
		t.Fatal(err)
	}
	if _, err := SubjectFromCode(0xa5); err == nil {
		t.Fatal("Subject 0xa5 should be invalid")
	}
}

func TestInfoFlags(t *testing.T) {
	for b := 0; b < 32; b++ {
		if f, err := InfoFlagsFromCode(byte(b)); err != nil || byte(f) != byte(b) {
			t.Fatalf("Bad flags %d: %v", b, err)
		}
	}
	if _, err := InfoFlagsFromCode(0x40); err == nil {
		t.Fatal("Unknown bit should be rejected")
	}
	if s := (InfoTime | InfoDistance).String(); s != "time|distance" {
		t.Fatalf("Bad string %q", s)
	}
	if s := InfoNone.String(); s != "none" {
		t.Fatalf("Bad string %q", s)
	}
	if f, ok := InfoFlagByName("calorie"); !ok || f != InfoCalorie {
		t.Fatal("Bad lookup")
	}
}

func TestMotorState(t *testing.T) {
	if !MotorStarting.Known() || MotorState(0b0101).Known() {
		t.Fatal("Bad Known")
	}
	if s := MotorState(0b0101).String(); s != "unknown(0b0101)" {
		t.Fatalf("Bad string %q", s)
	}
}
