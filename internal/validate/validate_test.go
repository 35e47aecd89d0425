package validate

import "testing"

func TestStripControl(t *testing.T) {
	got := StripControl("hello\x00 wor\x07ld\n")
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestEmail(t *testing.T) {
	cases := map[string]bool{
		"ada@example.com":  true,
		"ada@example.":     false,
		"ada@example":      false,
		"@example.com":     false,
		"ada example.com":  false,
		"":                 false,
	}
	for in, want := range cases {
		if got := Email(in); got != want {
			t.Errorf("Email(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestClampPageSize(t *testing.T) {
	if got := ClampPageSize(0); got != DefaultPageSize {
		t.Errorf("ClampPageSize(0) = %d, want default %d", got, DefaultPageSize)
	}
	if got := ClampPageSize(-5); got != DefaultPageSize {
		t.Errorf("ClampPageSize(-5) = %d, want default %d", got, DefaultPageSize)
	}
	if got := ClampPageSize(1000); got != MaxPageSize {
		t.Errorf("ClampPageSize(1000) = %d, want max %d", got, MaxPageSize)
	}
	if got := ClampPageSize(10); got != 10 {
		t.Errorf("ClampPageSize(10) = %d, want 10", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate should not pad short strings, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("Truncate(\"hello world\", 5) = %q, want \"hello\"", got)
	}
	if got := Truncate("a\x00bc", 10); got != "abc" {
		t.Errorf("Truncate should strip control chars first, got %q", got)
	}
}
