package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher struct {
	cost int
	// dummy is compared against when no usable hash exists. It shares the
	// configured cost so that a miss takes as long as a wrong password.
	dummy []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("password hasher: read random: %v", err))
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), cost)
	if err != nil {
		panic(fmt.Sprintf("password hasher: dummy hash: %v", err))
	}
	return &PasswordHasher{cost: cost, dummy: dummy}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether password matches hash. A nil hash still runs a
// full bcrypt comparison.
func (h *PasswordHasher) Compare(hash *string, password string) bool {
	if hash == nil || *hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password))
	return err == nil
}

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
)

// ValidatePassword checks the length policy. bcrypt ignores bytes past 72.
func ValidatePassword(password string, minLength int) error {
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	if len([]rune(password)) < minLength {
		return ErrPasswordTooShort
	}
	return nil
}
