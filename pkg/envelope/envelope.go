// Package envelope validates the signed request envelope carried in
// transport metadata — (public_key, address, signature), all hex-encoded —
// and shapes every coordinator outcome into the uniform response the
// serving layer returns, per spec.md §4.5 and §6.
//
// This is a direct translation of original_source's validate_signature and
// sig_verify_middleware (src/api/utils.rs): same three fields, same
// hex-then-Ed25519-verify-over-the-address-bytes semantics, reimplemented
// with crypto/ed25519 and encoding/hex instead of the Rust ed25519-dalek
// crate. No example repository in the corpus imports a third-party Ed25519
// package, so the standard library — the ecosystem-default choice for this
// primitive in Go — is used directly rather than substituted.
package envelope

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
)

// ErrInvalidSignature is returned by Verify for any failure in the
// envelope: malformed hex in any of the three fields, a public key of the
// wrong length, or a signature that does not verify over the address
// bytes. The caller never learns which of these occurred, matching
// original_source's single InvalidSignature error type.
var ErrInvalidSignature = errors.New("envelope: invalid signature")

// Verify decodes the three hex-encoded envelope fields and checks that
// signatureHex is a valid Ed25519 signature by publicKeyHex over the
// hex-decoded bytes of addressHex as the message.
//
// Validation is a pre-filter: callers must complete this before any
// coordinator call executes (spec.md §4.5), so no handler ever observes a
// request whose signature does not verify.
func Verify(publicKeyHex, addressHex, signatureHex string) error {
	pubKey, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return ErrInvalidSignature
	}

	address, err := hex.DecodeString(addressHex)
	if err != nil {
		return ErrInvalidSignature
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), address, sig) {
		return ErrInvalidSignature
	}

	return nil
}
