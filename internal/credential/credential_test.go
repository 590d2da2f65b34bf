package credential

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/recall/internal/store"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManagerWithSecret("test-secret")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestManager_EncryptDecrypt(t *testing.T) {
	manager := testManager(t)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"gemini key", "AIzaSyD-1234567890abcdef"},
		{"dictionary key", "dict.1.1.20260101T000000Z.abcdef"},
		{"long key", strings.Repeat("a", 1000)},
		{"unicode content", "ключ-🔑"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := manager.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if tc.plaintext == "" {
				if encrypted != "" {
					t.Errorf("empty string should not be encrypted, got: %s", encrypted)
				}
				return
			}
			if !IsEncrypted(encrypted) || strings.Contains(encrypted, tc.plaintext) {
				t.Errorf("value not sealed: %s", encrypted)
			}

			decrypted, err := manager.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if decrypted != tc.plaintext {
				t.Errorf("decrypted value mismatch: got %q, want %q", decrypted, tc.plaintext)
			}
		})
	}
}

func TestManager_Decrypt(t *testing.T) {
	manager := testManager(t)

	t.Run("Plain text passes through", func(t *testing.T) {
		got, err := manager.Decrypt("sk-not-encrypted")
		if err != nil || got != "sk-not-encrypted" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("Invalid input", func(t *testing.T) {
		for _, in := range []string{EncryptedPrefix + "not-valid-base64!!!", EncryptedPrefix + "YWJj"} {
			if _, err := manager.Decrypt(in); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Decrypt(%q): expected ErrInvalidFormat, got %v", in, err)
			}
		}
	})

	t.Run("Other secret cannot open", func(t *testing.T) {
		sealed, err := manager.Encrypt("AIzaSyD-1234567890abcdef")
		if err != nil {
			t.Fatal(err)
		}
		other, err := NewManagerWithSecret("another-secret")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := other.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("Nonces differ", func(t *testing.T) {
		a, _ := manager.Encrypt("same")
		b, _ := manager.Encrypt("same")
		if a == b {
			t.Error("same plaintext should produce different ciphertext")
		}
	})
}

func TestNewManager_EnvSecret(t *testing.T) {
	t.Setenv(KeyEnv, "shared")
	fromEnv, err := NewManager()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := fromEnv.Encrypt("portable")
	if err != nil {
		t.Fatal(err)
	}

	shared, err := NewManagerWithSecret("shared")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := shared.Decrypt(sealed); err != nil || got != "portable" {
		t.Errorf("expected env secret to derive the same key, got %q, %v", got, err)
	}
}

func TestMaskSecret(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"12345678", "****"},
		{"123456789", "1234...6789"},
		{"sk-1234567890abcdef", "sk-1...cdef"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := MaskSecret(tc.input); got != tc.expected {
				t.Errorf("MaskSecret(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestVault(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "recall.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	v := NewVault(s, testManager(t))

	if err := v.Set(ProviderAPIKey, "AIzaSyD-1234567890abcdef"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := v.Set("memory.language", "en"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, _ := s.GetConfig(ProviderAPIKey)
	if !IsEncrypted(raw) {
		t.Errorf("secret stored in plain text: %q", raw)
	}
	raw, _ = s.GetConfig("memory.language")
	if raw != "en" {
		t.Errorf("plain setting should be stored as is, got %q", raw)
	}

	got, err := v.Get(ProviderAPIKey)
	if err != nil || got != "AIzaSyD-1234567890abcdef" {
		t.Errorf("Get = %q, %v", got, err)
	}
	shown, err := v.Display(ProviderAPIKey)
	if err != nil || shown != "AIza...cdef" {
		t.Errorf("Display = %q, %v", shown, err)
	}
	if missing, err := v.Get(DictionaryAPIKey); err != nil || missing != "" {
		t.Errorf("expected empty value for unset key, got %q, %v", missing, err)
	}
}
