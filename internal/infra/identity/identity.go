// Package identity provides the stock implementations of the settlement
// core's identity collaborators: an ed25519 signature verifier for
// self-describing identities and static, config-driven directory and policy
// providers. Deployments with a real DID registry swap these out behind the
// domain interfaces.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Ed25519 Verifier ───────────────────────────────────────────────────────

const keyPrefix = "ed25519:"

// Ed25519Verifier verifies envelope signatures for identities of the form
// "ed25519:<base64 public key>". The identity string carries the key, so no
// external key registry is needed.
type Ed25519Verifier struct{}

// Verify implements domain.Verifier.
func (Ed25519Verifier) Verify(_ context.Context, signer domain.Identity, canonical []byte, signature string) error {
	pub, err := PublicKey(signer)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", domain.ErrValidation)
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return fmt.Errorf("%w: signature does not verify", domain.ErrValidation)
	}
	return nil
}

// PublicKey extracts the ed25519 public key embedded in an identity.
func PublicKey(id domain.Identity) (ed25519.PublicKey, error) {
	s := string(id)
	if !strings.HasPrefix(s, keyPrefix) {
		return nil, fmt.Errorf("%w: identity %q does not carry an ed25519 key", domain.ErrValidation, id)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: identity key is not base64", domain.ErrValidation)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: identity key has wrong length", domain.ErrValidation)
	}
	return ed25519.PublicKey(raw), nil
}

// FromPublicKey builds the identity string for a public key.
func FromPublicKey(pub ed25519.PublicKey) domain.Identity {
	return domain.Identity(keyPrefix + base64.StdEncoding.EncodeToString(pub))
}

// ─── Static Directory ───────────────────────────────────────────────────────

// StaticDirectory is a fixed user→identity binding table, typically loaded
// from configuration.
type StaticDirectory map[string]domain.Identity

// BoundIdentity implements domain.IdentityDirectory.
func (d StaticDirectory) BoundIdentity(_ context.Context, user string) (domain.Identity, error) {
	id, ok := d[user]
	if !ok {
		return "", fmt.Errorf("%w: no identity bound to user %q", domain.ErrNotFound, user)
	}
	return id, nil
}

// IsBound implements domain.IdentityDirectory.
func (d StaticDirectory) IsBound(_ context.Context, user string, id domain.Identity) (bool, error) {
	return d[user] == id, nil
}

// ─── Static Policies ────────────────────────────────────────────────────────

// StaticPolicies resolves spend policies from a fixed table. Identities
// without an entry get the zero policy (disabled, no limits).
type StaticPolicies map[domain.Identity]domain.SpendPolicy

// PolicyFor implements domain.PolicyProvider.
func (p StaticPolicies) PolicyFor(_ context.Context, id domain.Identity) (domain.SpendPolicy, error) {
	return p[id], nil
}
