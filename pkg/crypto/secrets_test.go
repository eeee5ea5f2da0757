package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestNewSecretBox(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"base64 key", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", nil},
		{"passphrase", "correct horse battery staple", nil},
		{"empty", "", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSecretBox(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSecretBox() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	box, err := NewSecretBox("passphrase")
	if err != nil {
		t.Fatalf("NewSecretBox() error = %v", err)
	}

	sealed, err := box.Seal("dapi-token")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, SealedPrefix) {
		t.Errorf("sealed value %q lacks prefix", sealed)
	}

	again, _ := box.Seal("dapi-token")
	if again == sealed {
		t.Error("expected distinct nonces for repeated seals")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != "dapi-token" {
		t.Errorf("Open() = %q, want %q", opened, "dapi-token")
	}

	plain, err := box.Open("not sealed")
	if err != nil || plain != "not sealed" {
		t.Errorf("Open(plain) = %q, %v", plain, err)
	}
}

func TestOpen_Failures(t *testing.T) {
	box, _ := NewSecretBox("one")
	other, _ := NewSecretBox("two")
	sealed, _ := box.Seal("secret")

	for name, value := range map[string]string{
		"wrong key":  sealed,
		"bad base64": SealedPrefix + "!!!",
		"too short":  SealedPrefix + "YWJj",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := other.Open(value); !errors.Is(err, ErrOpenFailed) {
				t.Errorf("Open() error = %v, want ErrOpenFailed", err)
			}
		})
	}
}

func TestOpenAll(t *testing.T) {
	box, _ := NewSecretBox("passphrase")
	token, _ := box.Seal("t0k3n")
	pw, _ := box.Seal("pw")

	m := map[string]any{
		"host":  "db.internal",
		"token": token,
		"port":  float64(5432),
		"nested": map[string]any{
			"password": pw,
		},
		"list": []any{token, "plain"},
	}
	if !HasSealed(m) {
		t.Fatal("HasSealed() = false, want true")
	}

	if err := box.OpenAll(m); err != nil {
		t.Fatalf("OpenAll() error = %v", err)
	}
	if m["token"] != "t0k3n" {
		t.Errorf("token = %v", m["token"])
	}
	if m["nested"].(map[string]any)["password"] != "pw" {
		t.Errorf("nested password = %v", m["nested"])
	}
	if m["list"].([]any)[0] != "t0k3n" {
		t.Errorf("list[0] = %v", m["list"])
	}
	if HasSealed(m) {
		t.Error("HasSealed() = true after OpenAll")
	}
}
