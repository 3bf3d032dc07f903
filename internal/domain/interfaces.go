package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The settlement core consumes these from external services; infrastructure
// implements them, tests substitute doubles.

// Verifier checks a signature over the canonical encoding of an envelope.
// Identity→public-key resolution happens behind this boundary.
type Verifier interface {
	// Verify returns nil when the signature is valid for the signer over
	// the canonical bytes, an error wrapping ErrValidation otherwise.
	Verify(ctx context.Context, signer Identity, canonical []byte, signature string) error
}

// IdentityDirectory resolves the DID binding between platform users and
// cryptographic identities.
type IdentityDirectory interface {
	// BoundIdentity returns the identity bound to the user, or an error
	// wrapping ErrNotFound when no binding exists.
	BoundIdentity(ctx context.Context, user string) (Identity, error)

	// IsBound reports whether the user is bound to the given identity.
	IsBound(ctx context.Context, user string, id Identity) (bool, error)
}

// PolicyProvider resolves the spend policy for an identity.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, id Identity) (SpendPolicy, error)
}
