package logger

import (
	"context"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "joh***@example.com",
		"ab@example.com":       "ab***@example.com",
		"":                     "",
		"no-at-sign":           "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"+573001234567":          "+573***4567",
		"whatsapp:+573001234567": "+573***4567",
		"12345":                  "***2345",
		"123":                    "***",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("192.168.1.100"); got != "192.168.*.*" {
		t.Fatalf("unexpected IPv4 mask %q", got)
	}
	if got := MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"); got != "2001:0db8:85a3:0000:*:*:*:*" {
		t.Fatalf("unexpected IPv6 mask %q", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if WithContext(ctx) == nil {
		t.Fatal("WithContext must never return nil")
	}
}
