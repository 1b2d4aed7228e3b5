package crypto

import (
	"context"
	"fmt"
	"strings"
)

// MockEncryptor implements Encryptor for local development (no KMS required).
// Ciphertext is "mock:<scope>:<plaintext>" so tests can read it back.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(ctx context.Context, scope, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return "mock:" + scope + ":" + plaintext, nil
}

func (m *MockEncryptor) Decrypt(ctx context.Context, scope, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	prefix := "mock:" + scope + ":"
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", fmt.Errorf("ciphertext not bound to %q", scope)
	}
	return strings.TrimPrefix(ciphertext, prefix), nil
}
