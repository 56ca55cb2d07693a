package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes provides 256 bits of entropy and encodes to 43
	// base64url characters, the minimum length RFC 7636 allows.
	pkceVerifierBytes = 32

	// stateLenBytes is the number of random bytes for the OAuth state
	// parameter.
	stateLenBytes = 32
)

// PKCEChallenge holds a code verifier and its derived S256 challenge
// for one authorization attempt. A challenge is never reused: a fresh
// one is generated per flow and discarded after the token exchange.
type PKCEChallenge struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The verifier is 32 bytes of cryptographically secure randomness,
// base64url-encoded without padding. The challenge is the SHA-256 hash
// of the verifier, encoded the same way.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GenerateState generates a random state parameter for an OAuth
// authorization request. The value is verified against the state
// echoed back at the callback endpoint to defend against CSRF.
func GenerateState() (string, error) {
	stateBytes := make([]byte, stateLenBytes)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}
