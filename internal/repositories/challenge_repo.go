package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PurposeRegister = "register"
	PurposeLink     = "link"
)

// ChallengeRepo keeps single-use challenges for wallets that have no account
// row yet (registration) or are about to be linked to one. Entries expire on
// their own and are removed atomically when consumed.
type ChallengeRepo struct {
	client *redis.Client
}

func NewChallengeRepo(client *redis.Client) *ChallengeRepo {
	return &ChallengeRepo{client: client}
}

// challengeKey scopes a challenge to the subject that asked for it. Link
// challenges carry the account id so only that account can consume them;
// registration has no subject yet.
func challengeKey(purpose, subject, wallet string) string {
	if subject == "" {
		return fmt.Sprintf("challenge:%s:%s", purpose, wallet)
	}
	return fmt.Sprintf("challenge:%s:%s:%s", purpose, subject, wallet)
}

// Issue stores a fresh nonce, displacing any outstanding one for the same key.
func (r *ChallengeRepo) Issue(ctx context.Context, purpose, subject, wallet string, ttl time.Duration) (string, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, challengeKey(purpose, subject, wallet), nonce, ttl).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

// Consume returns and deletes the outstanding nonce in one step.
func (r *ChallengeRepo) Consume(ctx context.Context, purpose, subject, wallet string) (string, error) {
	nonce, err := r.client.GetDel(ctx, challengeKey(purpose, subject, wallet)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return nonce, nil
}
