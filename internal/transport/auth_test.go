package transport

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestNormalizeBase64SecretStripsWhitespace(t *testing.T) {
	raw := "c2Vj cmV0" // "secret" base64, split by a stray space
	got, err := normalizeBase64Secret(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "secret" {
		t.Fatalf("decoded = %q, want secret", got)
	}
}

func TestNormalizeBase64SecretPadsMissingEquals(t *testing.T) {
	full := base64.StdEncoding.EncodeToString([]byte("secretvalue"))
	unpadded := bytes.TrimRight([]byte(full), "=")

	got, err := normalizeBase64Secret(string(unpadded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "secretvalue" {
		t.Fatalf("decoded = %q, want secretvalue", got)
	}
}

func TestNormalizeBase64SecretRejectsInvalid(t *testing.T) {
	if _, err := normalizeBase64Secret("not base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
