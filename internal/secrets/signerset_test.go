package secrets

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordium/euro2ccd-oracle/internal/node"
)

type fakeProvider struct {
	secrets map[string]*Secret
}

func (f *fakeProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	if s, ok := f.secrets[key]; ok {
		return s, nil
	}
	return nil, &SecretNotFoundError{Key: key, Provider: "fake"}
}
func (f *fakeProvider) GetSecrets(ctx context.Context, keys []string) (map[string]*Secret, error) {
	return nil, nil
}
func (f *fakeProvider) SetSecret(ctx context.Context, key string, value []byte, options *SecretOptions) error {
	return nil
}
func (f *fakeProvider) DeleteSecret(ctx context.Context, key string) error { return nil }
func (f *fakeProvider) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}
func (f *fakeProvider) Health(ctx context.Context) *HealthStatus { return &HealthStatus{Healthy: true} }

func newFakeKeySecret(t *testing.T, index uint8) (*Secret, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	kf := keypairFile{Index: index, PrivateKey: hex.EncodeToString(priv), PublicKey: hex.EncodeToString(pub)}
	b, err := json.Marshal(kf)
	require.NoError(t, err)
	return &Secret{Key: "gov-key", Value: b}, pub
}

func TestBuildSignerSetAndValidate(t *testing.T) {
	secret, pub := newFakeKeySecret(t, 2)
	provider := &fakeProvider{secrets: map[string]*Secret{"gov-key": secret}}

	ss, err := BuildSignerSet(context.Background(), provider, []string{"gov-key"})
	require.NoError(t, err)

	err = ss.ValidateAgainstChain([]node.AuthorizedKey{{Index: 2, PublicKey: pub}})
	assert.NoError(t, err)
}

func TestValidateAgainstChainRejectsUnauthorizedIndex(t *testing.T) {
	secret, _ := newFakeKeySecret(t, 2)
	provider := &fakeProvider{secrets: map[string]*Secret{"gov-key": secret}}

	ss, err := BuildSignerSet(context.Background(), provider, []string{"gov-key"})
	require.NoError(t, err)

	err = ss.ValidateAgainstChain([]node.AuthorizedKey{{Index: 9, PublicKey: []byte("other")}})
	assert.Error(t, err)
}

func TestSignProducesSignatureForEachKey(t *testing.T) {
	secret, _ := newFakeKeySecret(t, 0)
	provider := &fakeProvider{secrets: map[string]*Secret{"gov-key": secret}}
	ss, err := BuildSignerSet(context.Background(), provider, []string{"gov-key"})
	require.NoError(t, err)

	sigs, err := ss.Sign(node.BlockItem{SequenceNumber: 1})
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
	assert.Contains(t, sigs, uint8(0))
}
