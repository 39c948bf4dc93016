package pin

import (
	"errors"
	"testing"
)

// recordedPin is the leaf pin the backend was deployed with.
const recordedPin = "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8g="

func TestFromDER_KnownAnswers(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", []byte{}, "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="},
		{"abc", []byte("abc"), "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromDER(tc.in); got != tc.want {
				t.Errorf("FromDER(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFromDER_SingleByteChangesPin(t *testing.T) {
	a := FromDER([]byte("abc"))
	b := FromDER([]byte("abd"))
	if a == b {
		t.Fatalf("pins of different inputs are equal: %q", a)
	}
}

func TestFromDER_Deterministic(t *testing.T) {
	der := []byte{0x30, 0x82, 0x01, 0x0a, 0x02, 0x82}
	first := FromDER(der)
	for i := 0; i < 5; i++ {
		if got := FromDER(der); got != first {
			t.Fatalf("call %d: got %q, want %q", i, got, first)
		}
	}
}

func TestMatch_Exact(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"identical", recordedPin, recordedPin, true},
		{"case differs", "BWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8g=", recordedPin, false},
		{"missing padding", "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8g", recordedPin, false},
		{"prefix only", recordedPin[:10], recordedPin, false},
		{"trailing space", recordedPin + " ", recordedPin, false},
		{"empty", "", recordedPin, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Match(tc.actual, tc.expected); got != tc.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tc.actual, tc.expected, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", recordedPin, recordedPin, false},
		{"sha256 prefix", "sha256/" + recordedPin, recordedPin, false},
		{"surrounding whitespace", "  " + recordedPin + "\n", recordedPin, false},
		{"empty", "", "", true},
		{"prefix only", "sha256/", "", true},
		{"not base64", "not-a-pin!", "", true},
		{"wrong length", "YWJj", "", true},
		{"url alphabet", "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg-uO0mQ8g=", "", true},
		{"non-zero padding bits", "bWsw3WqdtgiEWsOtKrjFEOAjebBzD4GruTg+uO0mQ8h=", "", true},
		{"embedded newline", "bWsw3WqdtgiEWsOt\nKrjFEOAjebBzD4GruTg+uO0mQ8g=", "", true},
		{"embedded carriage return", "bWsw3WqdtgiEWsOtKrjFEOAj\r\nebBzD4GruTg+uO0mQ8g=", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidPin) {
					t.Fatalf("Normalize(%q) err = %v, want ErrInvalidPin", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewSet(t *testing.T) {
	backup := FromDER([]byte("backup"))

	s, err := NewSet("sha256/"+recordedPin, backup, recordedPin)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (duplicate folded)", s.Len())
	}
	if got := s.Pins(); got[0] != recordedPin || got[1] != backup {
		t.Errorf("Pins() = %v, want [%s %s]", got, recordedPin, backup)
	}
	if !s.Contains(recordedPin) {
		t.Error("Contains(primary) = false")
	}
	if !s.Contains(backup) {
		t.Error("Contains(backup) = false")
	}
	if s.Contains("sha256/" + recordedPin) {
		t.Error("Contains() must compare the computed pin verbatim")
	}
}

func TestNewSet_Empty(t *testing.T) {
	if _, err := NewSet(); !errors.Is(err, ErrNoPins) {
		t.Fatalf("NewSet() err = %v, want ErrNoPins", err)
	}
}

func TestNewSet_Invalid(t *testing.T) {
	if _, err := NewSet(recordedPin, "bogus"); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("NewSet() err = %v, want ErrInvalidPin", err)
	}
}

func TestSet_ZeroValueMatchesNothing(t *testing.T) {
	var s Set
	if s.Contains(recordedPin) {
		t.Fatal("zero Set matched a pin")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindCertificate, "cert": KindCertificate, "spki": KindSPKI} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("sha1"); err == nil {
		t.Error("ParseKind(sha1) should fail")
	}
}
