package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// MinTokenBytes is the smallest token size accepted for capability links (128 bits).
const MinTokenBytes = 16

// PIN bounds. PINs are always six digits with no leading zero.
const (
	PINMin    = 100000
	PINMax    = 999999
	PINLength = 6
)

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length < MinTokenBytes {
		return "", fmt.Errorf("crypto: token length must be at least %d bytes", MinTokenBytes)
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GeneratePIN returns a six digit numeric PIN drawn from crypto/rand.
func GeneratePIN() (string, error) {
	span := big.NewInt(PINMax - PINMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+PINMin), nil
}

// ValidPIN reports whether value is exactly six ASCII digits.
func ValidPIN(value string) bool {
	if len(value) != PINLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// EqualSecret compares two secrets in constant time with respect to their contents.
func EqualSecret(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ErrEmptyToken is returned when a token is blank after trimming.
var ErrEmptyToken = errors.New("crypto: token is empty")

// NormalizeToken trims surrounding whitespace from a URL token.
func NormalizeToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
