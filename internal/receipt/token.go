// Package receipt issues signed receipt-retrieval tokens and renders receipt
// PDFs for paid orders.
package receipt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidToken is returned for every malformed or mismatched token. A
// single error value keeps the endpoint from acting as a validity oracle.
var ErrInvalidToken = errors.New("invalid receipt token")

// TokenIssuer signs and verifies receipt tokens. Tokens carry no expiry:
// receipts stay permanently retrievable.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

func (t *TokenIssuer) sign(orderID string) []byte {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte("receipt:" + orderID))
	return mac.Sum(nil)
}

// Issue returns "orderID.hex(HMAC-SHA256(secret, "receipt:"+orderID))".
func (t *TokenIssuer) Issue(orderID string) string {
	return orderID + "." + hex.EncodeToString(t.sign(orderID))
}

// Verify recomputes the signature and compares in constant time, returning
// the embedded order id on success.
func (t *TokenIssuer) Verify(token string) (string, error) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return "", ErrInvalidToken
	}

	orderID := token[:idx]
	sig, err := hex.DecodeString(token[idx+1:])
	if err != nil {
		return "", ErrInvalidToken
	}

	if !hmac.Equal(sig, t.sign(orderID)) {
		return "", ErrInvalidToken
	}
	return orderID, nil
}
