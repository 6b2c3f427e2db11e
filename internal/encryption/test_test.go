package encryption

import (
	"bytes"
	"errors"
	"testing"

	"reeltrust/internal/config"
	"reeltrust/internal/manifest"
)

func TestTestEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := NewTestEncryptor()
	if err := e.Setup("any-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := e.Setup("again"); !errors.Is(err, ErrKeysExist) {
		t.Errorf("second Setup() error = %v, want ErrKeysExist", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}
}

func TestTestEncryptor_Unlock(t *testing.T) {
	t.Parallel()

	open := NewTestEncryptor()
	if _, err := open.Unlock("anything"); err != nil {
		t.Errorf("Unlock() without setup error = %v", err)
	}

	e := NewTestEncryptor()
	if err := e.Setup("secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Unlock("wrong"); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("Unlock(wrong) error = %v, want ErrBadPassphrase", err)
	}
	if _, err := e.Unlock("secret"); err != nil {
		t.Errorf("Unlock(secret) error = %v", err)
	}
}

func TestTestEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if bytes.Equal(sealed.Bytes(), tt.input) {
				t.Error("sealed output is identical to plaintext")
			}
			if !e.IsSealed(sealed.Bytes()) {
				t.Error("IsSealed() = false for sealed output")
			}

			ctx, err := e.Unlock("any-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var opened bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(sealed.Bytes()), &opened); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(opened.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", opened.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_ChecksumsDifferAndAreStable(t *testing.T) {
	t.Parallel()

	input := []byte("archive bytes")
	e := NewTestEncryptor()

	var enc1, enc2 bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(input), &enc1); err != nil {
		t.Fatal(err)
	}
	if err := e.Encrypt(bytes.NewReader(input), &enc2); err != nil {
		t.Fatal(err)
	}

	if manifest.Hash(input).Equal(manifest.Hash(enc1.Bytes())) {
		t.Error("plaintext and sealed checksums should differ")
	}
	if !bytes.Equal(enc1.Bytes(), enc2.Bytes()) {
		t.Error("same input produced different sealed output")
	}
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"invalid header", []byte("NOT_VALID_HEADER_data")},
		{"truncated header", []byte("REEL")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &TestDecryptionContext{}
			if err := ctx.Decrypt(bytes.NewReader(tt.input), &bytes.Buffer{}); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{typ: "age"},
		{typ: ""},
		{typ: "test"},
		{typ: "none", wantNil: true},
		{typ: "rot13", wantNil: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig(%q) nil = %v, want %v", tt.typ, got == nil, tt.wantNil)
			}
		})
	}
}
