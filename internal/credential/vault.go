package credential

import "fmt"

// Configuration keys holding secrets.
const (
	ProviderAPIKey   = "provider.api_key"
	DictionaryAPIKey = "dictionary.api_key"
)

var secretKeys = map[string]bool{
	ProviderAPIKey:   true,
	DictionaryAPIKey: true,
}

// IsSecret reports whether the configuration key holds a credential.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// KeyValue is the configuration table of a store.
type KeyValue interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Vault reads and writes configuration values, encrypting the secret ones.
type Vault struct {
	kv KeyValue
	m  *Manager
}

func NewVault(kv KeyValue, m *Manager) *Vault {
	return &Vault{kv: kv, m: m}
}

// Set stores value under key, sealed when key is a secret.
func (v *Vault) Set(key, value string) error {
	if IsSecret(key) && !IsEncrypted(value) {
		sealed, err := v.m.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		value = sealed
	}
	return v.kv.SetConfig(key, value)
}

// Get returns the plain value stored under key, or "" when unset.
func (v *Vault) Get(key string) (string, error) {
	stored, err := v.kv.GetConfig(key)
	if err != nil {
		return "", err
	}
	plain, err := v.m.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", key, err)
	}
	return plain, nil
}

// Display returns the value for printing, masking secrets.
func (v *Vault) Display(key string) (string, error) {
	value, err := v.Get(key)
	if err != nil || value == "" || !IsSecret(key) {
		return value, err
	}
	return MaskSecret(value), nil
}
