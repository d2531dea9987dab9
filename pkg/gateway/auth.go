package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	maxAuthAttempts     = 3
	defaultChallengeTTL = 30 * time.Second
)

// AuthHandler guards the gateway with the shared secret: websocket clients
// sign a one-time challenge, HTTP callers present the secret itself.
type AuthHandler struct {
	sharedSecret string
	challengeTTL time.Duration
	now          func() time.Time
}

func NewAuthHandler(sharedSecret string, challengeTTL time.Duration) *AuthHandler {
	if challengeTTL <= 0 {
		challengeTTL = defaultChallengeTTL
	}
	return &AuthHandler{sharedSecret: sharedSecret, challengeTTL: challengeTTL, now: time.Now}
}

// IssueChallenge stores a fresh challenge on client and returns the frame
// to send it.
func (a *AuthHandler) IssueChallenge(client *Client) (AuthChallenge, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return AuthChallenge{}, fmt.Errorf("failed to generate challenge: %w", err)
	}
	expires := a.now().Add(a.challengeTTL)

	client.Challenge = hex.EncodeToString(raw)
	client.ChallengeExpiresAt = expires
	client.State = StateAuthenticating

	return AuthChallenge{Event: "auth.challenge", Challenge: client.Challenge, ExpiresAt: expires.UTC()}, nil
}

// Sign computes the signature a client must return for challenge.
func Sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySecret checks a shared secret presented directly, as /rpc and
// /v1/tools do.
func (a *AuthHandler) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(secret)) == 1
}

// HandleAuthResponse checks signature against the client's outstanding
// challenge. A challenge is single use: it is cleared on success, on expiry
// and once the client runs out of attempts.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return AuthResult{Event: "auth.failure", Message: "No challenge found"}
	}
	if a.now().After(client.ChallengeExpiresAt) {
		client.Challenge = ""
		client.AuthAttempts = maxAuthAttempts
		return AuthResult{Event: "auth.failure", Message: "Challenge expired"}
	}

	expected := Sign(a.sharedSecret, client.Challenge)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			client.Challenge = ""
			return AuthResult{Event: "auth.failure", Message: "Too many failed attempts"}
		}
		return AuthResult{Event: "auth.failure", Message: "Invalid signature"}
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{Event: "auth.success", Success: true}
}
