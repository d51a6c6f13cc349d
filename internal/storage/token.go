package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// TokenLength is the number of characters in a document token.
const TokenLength = 8

const maxAllocAttempts = 5

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Reserver claims tokens across processes. Reserve returns false when the
// token is already taken.
type Reserver interface {
	Reserve(ctx context.Context, token string) (bool, error)
}

// NewToken returns the first eight characters of a random UUID.
func NewToken() string {
	return uuid.NewString()[:TokenLength]
}

// ValidToken reports whether s has the shape of a generated token.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Allocate picks a token that does not resolve in s and, when r is non-nil,
// reserves it. It gives up after a few attempts.
func Allocate(ctx context.Context, s Store, r Reserver) (string, error) {
	return allocate(ctx, s, r, NewToken)
}

func allocate(ctx context.Context, s Store, r Reserver, gen func() string) (string, error) {
	for i := 0; i < maxAllocAttempts; i++ {
		token := gen()
		if _, err := s.Find(ctx, token); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("check token: %w", err)
		}
		if r != nil {
			ok, err := r.Reserve(ctx, token)
			if err != nil {
				return "", fmt.Errorf("reserve token: %w", err)
			}
			if !ok {
				continue
			}
		}
		return token, nil
	}
	return "", fmt.Errorf("no free token after %d attempts", maxAllocAttempts)
}
