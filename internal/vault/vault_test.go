package vault

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

func checksumOf(s string) string {
	return manifest.Hash([]byte(s)).Hex
}

// vaultContract runs the behaviour every reel.Vault must share.
func vaultContract(t *testing.T, newVault func(t *testing.T) reel.Vault) {
	t.Run("put and get", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"small content", "hello world"},
			{"empty content", ""},
			{"large content", strings.Repeat("x", 100000)},
		}
		v := newVault(t)
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sum := checksumOf(tt.content)
				if err := v.PutContent(sum, strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
					t.Fatalf("PutContent() error = %v", err)
				}
				var buf bytes.Buffer
				if err := v.GetContent(sum, &buf); err != nil {
					t.Fatalf("GetContent() error = %v", err)
				}
				if buf.String() != tt.content {
					t.Errorf("GetContent() returned %d bytes, want %d", buf.Len(), len(tt.content))
				}
				ok, err := v.HasContent(sum)
				if err != nil || !ok {
					t.Errorf("HasContent() = %v, %v; want true", ok, err)
				}
			})
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		v := newVault(t)
		content := "test content"
		sum := checksumOf(content)
		for i := 0; i < 2; i++ {
			if err := v.PutContent(sum, strings.NewReader(content), int64(len(content))); err != nil {
				t.Fatalf("PutContent() iteration %d error: %v", i+1, err)
			}
		}
		var buf bytes.Buffer
		if err := v.GetContent(sum, &buf); err != nil {
			t.Fatal(err)
		}
		if buf.String() != content {
			t.Errorf("GetContent() = %q, want %q", buf.String(), content)
		}
	})

	t.Run("not found", func(t *testing.T) {
		v := newVault(t)
		sum := checksumOf("never stored")
		err := v.GetContent(sum, &bytes.Buffer{})
		if !errors.Is(err, reel.ErrContentNotFound) {
			t.Errorf("GetContent() error = %v, want ErrContentNotFound", err)
		}
		ok, err := v.HasContent(sum)
		if err != nil || ok {
			t.Errorf("HasContent() = %v, %v; want false", ok, err)
		}
	})

	t.Run("rejects mismatched content", func(t *testing.T) {
		v := newVault(t)
		sum := checksumOf("expected")
		if err := v.PutContent(sum, strings.NewReader("tampered"), int64(len("tampered"))); err == nil {
			t.Error("PutContent() expected checksum error")
		}
		if ok, _ := v.HasContent(sum); ok {
			t.Error("mismatched content was stored")
		}
	})

	t.Run("rejects size mismatch", func(t *testing.T) {
		v := newVault(t)
		content := "sized"
		if err := v.PutContent(checksumOf(content), strings.NewReader(content), 99); err == nil {
			t.Error("PutContent() expected size error")
		}
	})

	t.Run("rejects invalid checksum", func(t *testing.T) {
		v := newVault(t)
		for _, sum := range []string{"abc123", "../../etc/passwd", strings.ToUpper(checksumOf("x"))} {
			if err := v.PutContent(sum, strings.NewReader("x"), 1); err == nil {
				t.Errorf("PutContent(%q) expected error", sum)
			}
		}
	})

	t.Run("concurrent puts", func(t *testing.T) {
		v := newVault(t)
		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				content := strings.Repeat("c", i+1)
				errs[i] = v.PutContent(checksumOf(content), strings.NewReader(content), int64(len(content)))
			}(i)
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Errorf("PutContent() %d error = %v", i, err)
			}
		}
	})
}

func TestMemoryVault(t *testing.T) {
	vaultContract(t, func(t *testing.T) reel.Vault { return NewMemoryVault("mem") })
}

func TestFileSystemVault(t *testing.T) {
	vaultContract(t, func(t *testing.T) reel.Vault {
		v, err := NewFileSystemVault("fs", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	})
}

func TestS3Vault(t *testing.T) {
	vaultContract(t, func(t *testing.T) reel.Vault {
		fake := newFakeS3()
		return newS3Vault("s3", "bucket", "reels", fake, fake)
	})
}
