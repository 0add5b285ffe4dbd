package utils

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	friendCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	friendCodeLength   = 8
)

var friendCodeRegex = regexp.MustCompile(`^#[a-zA-Z0-9]{8}$`)

// NewFriendCode returns a random human-shareable code of the form
// "#aB3xY9kQ". Uniqueness is checked by the caller against the store.
func NewFriendCode() (string, error) {
	var b strings.Builder
	b.WriteByte('#')
	max := big.NewInt(int64(len(friendCodeAlphabet)))
	for i := 0; i < friendCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(friendCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidFriendCode reports whether s has the friend-code shape.
func ValidFriendCode(s string) bool {
	return friendCodeRegex.MatchString(strings.TrimSpace(s))
}
