package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalFileProvider implements SecretProvider by reading keypair JSON files
// directly from disk — the provider selected by --local-keys, mutually
// exclusive with the cloud secret-manager provider. Modeled on the
// teacher's K8sProvider file-mount pattern, simplified since local-keys
// paths are explicit file paths rather than a directory mount.
type LocalFileProvider struct {
	paths map[string]string // key -> file path
}

// NewLocalFileProvider builds a provider over an explicit set of key-path
// entries, as supplied by repeated --local-keys flags.
func NewLocalFileProvider(paths []string) *LocalFileProvider {
	m := make(map[string]string, len(paths))
	for _, p := range paths {
		m[filepath.Base(p)] = p
	}
	return &LocalFileProvider{paths: m}
}

func (p *LocalFileProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	path, ok := p.paths[key]
	if !ok {
		return nil, &SecretNotFoundError{Key: key, Provider: "local-file"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("local-file: stat %s: %w", path, err)
	}
	value, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("local-file: read %s: %w", path, err)
	}
	return &Secret{
		Key:       key,
		Value:     value,
		CreatedAt: info.ModTime(),
		Metadata:  map[string]string{"source": "local-file", "path": path},
	}, nil
}

func (p *LocalFileProvider) GetSecrets(ctx context.Context, keys []string) (map[string]*Secret, error) {
	out := make(map[string]*Secret)
	for _, k := range keys {
		if s, err := p.GetSecret(ctx, k); err == nil {
			out[k] = s
		}
	}
	return out, nil
}

func (p *LocalFileProvider) SetSecret(ctx context.Context, key string, value []byte, options *SecretOptions) error {
	return fmt.Errorf("SetSecret not supported for local-file provider")
}

func (p *LocalFileProvider) DeleteSecret(ctx context.Context, key string) error {
	return fmt.Errorf("DeleteSecret not supported for local-file provider")
}

func (p *LocalFileProvider) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range p.paths {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (p *LocalFileProvider) Health(ctx context.Context) *HealthStatus {
	start := time.Now()
	var errs []string
	for key, path := range p.paths {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return &HealthStatus{
		Healthy:        len(errs) == 0,
		Provider:       "local-file",
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Errors:         errs,
	}
}
