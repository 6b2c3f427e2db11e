package encryption

import (
	"bytes"
	"fmt"
	"io"

	"reeltrust/internal/reel"
)

// sealHeader is prepended by TestEncryptor so sealed output differs from
// plaintext while remaining deterministic and reversible.
var sealHeader = []byte("REELSEAL")

// TestEncryptor is a deterministic, crypto-free Encryptor for tests.
// Encrypt prepends an 8-byte header and Decrypt strips it.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

var _ reel.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor. An empty passphrase accepts
// any passphrase on Unlock.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if e.setup {
		return ErrKeysExist
	}
	e.setup = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealHeader); err != nil {
		return fmt.Errorf("writing seal header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (reel.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrBadPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

func (e *TestEncryptor) IsSealed(header []byte) bool {
	return bytes.HasPrefix(header, sealHeader)
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ reel.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(sealHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading seal header: %w", err)
	}
	if !bytes.Equal(header, sealHeader) {
		return fmt.Errorf("invalid seal header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
