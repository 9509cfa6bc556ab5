package envutil

import (
	"testing"
	"time"
)

func TestStr(t *testing.T) {
	t.Setenv("TEST_STR", "  value  ")
	if got := Str("TEST_STR", "def"); got != "value" {
		t.Fatalf("Str: got=%q want=value", got)
	}
	if got := Str("TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("Str default: got=%q", got)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	if got := Int("TEST_INT", 7); got != 42 {
		t.Fatalf("Int: got=%d want=42", got)
	}
	if got := Int("TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("Int bad value: got=%d want=7", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("TEST_BOOL_ON", "Yes")
	t.Setenv("TEST_BOOL_OFF", "0")
	t.Setenv("TEST_BOOL_JUNK", "maybe")
	if !Bool("TEST_BOOL_ON", false) {
		t.Fatalf("Bool on")
	}
	if Bool("TEST_BOOL_OFF", true) {
		t.Fatalf("Bool off")
	}
	if !Bool("TEST_BOOL_JUNK", true) {
		t.Fatalf("Bool junk must keep default")
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("TEST_SECS", "30")
	t.Setenv("TEST_SECS_NEG", "-5")
	if got := Seconds("TEST_SECS", time.Minute); got != 30*time.Second {
		t.Fatalf("Seconds: got=%v", got)
	}
	if got := Seconds("TEST_SECS_NEG", time.Minute); got != time.Minute {
		t.Fatalf("Seconds negative must keep default: got=%v", got)
	}
}
