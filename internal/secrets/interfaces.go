package secrets

import (
	"context"
	"fmt"
	"time"
)

// SecretProvider defines the interface for secret management systems
type SecretProvider interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (*Secret, error)

	// GetSecrets retrieves multiple secrets by keys
	GetSecrets(ctx context.Context, keys []string) (map[string]*Secret, error)

	// SetSecret stores a secret (for providers that support write operations)
	SetSecret(ctx context.Context, key string, value []byte, options *SecretOptions) error

	// DeleteSecret removes a secret (for providers that support delete operations)
	DeleteSecret(ctx context.Context, key string) error

	// ListSecrets returns available secret keys (for providers that support listing)
	ListSecrets(ctx context.Context, prefix string) ([]string, error)

	// Health returns the health status of the secret provider
	Health(ctx context.Context) *HealthStatus
}

// Secret represents a secret with metadata
type Secret struct {
	Key       string            `json:"key"`
	Value     []byte            `json:"-"` // Never serialize the actual value
	Metadata  map[string]string `json:"metadata,omitempty"`
	Version   string            `json:"version,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// SecretOptions provides configuration for secret storage
type SecretOptions struct {
	TTL         time.Duration     `json:"ttl,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Encrypt     bool              `json:"encrypt,omitempty"`
}

// HealthStatus represents the health of a secret provider
type HealthStatus struct {
	Healthy        bool              `json:"healthy"`
	Provider       string            `json:"provider"`
	LastCheck      time.Time         `json:"last_check"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	Errors         []string          `json:"errors,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SecretNotFoundError wraps secret not found errors with context
type SecretNotFoundError struct {
	Key      string
	Provider string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found in provider '%s'", e.Key, e.Provider)
}
