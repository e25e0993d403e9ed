package models

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenPurpose identifies which out-of-band action a link token authorizes.
type TokenPurpose string

const (
	// TokenPurposeFeeApproval lets the seller approve the platform fee by email.
	TokenPurposeFeeApproval TokenPurpose = "fee_approval"
	// TokenPurposeValidation lets the bill-to-party confirm the invoice.
	TokenPurposeValidation TokenPurpose = "validation"
	// TokenPurposePaymentApproval lets the buyer confirm the transfer.
	TokenPurposePaymentApproval TokenPurpose = "payment_approval"
)

// IsValid returns true if the purpose is known.
func (p TokenPurpose) IsValid() bool {
	switch p {
	case TokenPurposeFeeApproval, TokenPurposeValidation, TokenPurposePaymentApproval:
		return true
	default:
		return false
	}
}

// ActionToken is a single-use capability embedded in an email link. Only the
// hash of the raw token is stored.
type ActionToken struct {
	ID         string       `json:"id"`
	TokenHash  string       `json:"-"`
	Purpose    TokenPurpose `json:"purpose"`
	AssetID    string       `json:"asset_id"`
	BidID      string       `json:"bid_id,omitempty"`
	Email      string       `json:"email"`
	ExpiresAt  time.Time    `json:"expires_at"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsExpired returns true if the token is past its expiry at now.
func (t *ActionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsConsumed returns true if the token was already used.
func (t *ActionToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// GenerateToken returns a new raw link token. The raw value goes into the
// email and is never stored.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken creates a SHA256 hash of a raw token for storage and lookup.
func HashToken(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])
}

// LinkSigner derives the raw value of a link token from the token's ID with
// HMAC-SHA256. The raw value only ever appears in the email, so neither the
// token table nor the event queue holds anything that redeems a link.
type LinkSigner struct {
	key []byte
}

// NewLinkSigner returns a signer keyed with secret. Every process that issues
// or mails links must share the same secret.
func NewLinkSigner(secret []byte) *LinkSigner {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &LinkSigner{key: key}
}

// Raw returns the raw link token for a token ID.
func (s *LinkSigner) Raw(tokenID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(tokenID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
