// Package userdb holds user account persistence: the pooled SQL access layer,
// credential hashing and the uid generator.
package userdb

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 100_000
	saltLen        = 16
	keyLen         = 64
)

var ErrMalformedHash = errors.New("userdb: malformed password hash")

// HashPassword derives a PBKDF2-HMAC-SHA512 key from the password under a
// fresh random salt and encodes everything needed to verify it later as
// "iterations&hex(key)&hex(salt)".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, hashIterations, keyLen, sha512.New)
	return strconv.Itoa(hashIterations) + "&" + hex.EncodeToString(key) + "&" + hex.EncodeToString(salt), nil
}

// VerifyPassword re-derives the key from the candidate password and the
// stored salt and compares in constant time.
func VerifyPassword(stored, password string) (bool, error) {
	parts := strings.Split(stored, "&")
	if len(parts) != 3 {
		return false, ErrMalformedHash
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false, ErrMalformedHash
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
