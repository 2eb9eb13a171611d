package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	keyLength = 32 // 256 bit
)

// IKeySource provides the shared secret handed out by the key exchange.
type IKeySource interface {
	// SharedKey returns the secret in its textual (base64) form.
	SharedKey() string
}

type staticKey string

func (k staticKey) SharedKey() string {
	return string(k)
}

// NewStaticKeySource returns a source that always hands out key.
func NewStaticKeySource(key string) IKeySource {
	return staticKey(key)
}

// NewRandomKeySource generates a random 256 bit secret once and returns a
// source handing it out.
func NewRandomKeySource() (IKeySource, error) {
	randomBytes := make([]byte, keyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate shared key: %w", err)
	}
	return staticKey(base64.StdEncoding.EncodeToString(randomBytes)), nil
}
