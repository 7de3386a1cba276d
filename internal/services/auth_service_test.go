package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/insidebox/backend/internal/apperr"
	"github.com/insidebox/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Password(t *testing.T) {
	f := newFixture(t)

	res, err := f.auth.Register(context.Background(), RegisterInput{
		FullName: "  Ada  ",
		Email:    "ada@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Ada", res.Account.FullName)
	assert.Equal(t, models.RoleUser, res.Account.Role)
	assert.Equal(t, models.AuthMethodPassword, res.Account.AuthMethod())

	stored := f.store.get(res.Account.ID)
	require.NotNil(t, stored.PasswordHash)
	assert.NotEqual(t, "secret1", *stored.PasswordHash)
	assert.Nil(t, stored.WalletAddress)

	assert.Contains(t, f.audit.actions(), "account_registered")
	assert.Contains(t, f.publisher.types(), "account_registered")
}

func TestRegister_CredentialRules(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "secret1"}, ErrFullNameRequired},
		{"bad email", RegisterInput{FullName: "A", Email: "not-an-email", Password: "secret1"}, ErrInvalidEmail},
		{"no credential", RegisterInput{FullName: "A", Email: "a@example.com"}, ErrMissingCredential},
		{"both credentials", RegisterInput{FullName: "A", Email: "a@example.com", Password: "secret1", WalletAddress: w.address, Signature: "0x00"}, ErrBothCredentials},
		{"wallet without signature", RegisterInput{FullName: "A", Email: "a@example.com", WalletAddress: w.address}, ErrWalletFieldsMissing},
		{"invalid wallet", RegisterInput{FullName: "A", Email: "a@example.com", WalletAddress: "0x123", Signature: "0x00"}, ErrInvalidWallet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Register(context.Background(), RegisterInput{
		FullName: "A",
		Email:    "a@example.com",
		Password: "12345",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	f := newFixture(t)
	f.registerPassword(t, "dup@example.com", "secret1")

	_, err := f.auth.Register(context.Background(), RegisterInput{
		FullName: "B",
		Email:    "DUP@example.com",
		Password: "secret2",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_WalletRequiresChallenge(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)

	_, err := f.auth.Register(context.Background(), RegisterInput{
		FullName:      "W",
		Email:         "w@example.com",
		WalletAddress: w.address,
		Signature:     w.sign(t, testRegistrationPreamble+"guessed"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRegister_WalletSignatureFromOtherKey(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	other := newWallet(t)
	ctx := context.Background()

	ch, err := f.auth.IssueRegistrationChallenge(ctx, w.address)
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, RegisterInput{
		FullName:      "W",
		Email:         "w@example.com",
		WalletAddress: w.address,
		Signature:     other.sign(t, ch.Message),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRegister_SignatureCannotBeReplayedAfterDeletion(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	ctx := context.Background()

	ch, err := f.auth.IssueRegistrationChallenge(ctx, w.address)
	require.NoError(t, err)
	in := RegisterInput{
		FullName:      "W",
		Email:         "w@example.com",
		WalletAddress: w.address,
		Signature:     w.sign(t, ch.Message),
	}
	res, err := f.auth.Register(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, res.Account.ID))

	_, err = f.auth.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRegister_DuplicateWallet(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "first@example.com", w)

	ch, err := f.auth.IssueRegistrationChallenge(context.Background(), w.address)
	require.NoError(t, err)
	_, err = f.auth.Register(context.Background(), RegisterInput{
		FullName:      "W",
		Email:         "second@example.com",
		WalletAddress: w.checksum(),
		Signature:     w.sign(t, ch.Message),
	})
	assert.ErrorIs(t, err, ErrWalletTaken)
}

func TestLoginPassword(t *testing.T) {
	f := newFixture(t)
	account := f.registerPassword(t, "login@example.com", "secret1")

	res, err := f.auth.LoginPassword(context.Background(), "login@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, res.Account.ID)

	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginPassword_NoEnumeration(t *testing.T) {
	f := newFixture(t)
	f.registerPassword(t, "known@example.com", "secret1")

	_, errUnknown := f.auth.LoginPassword(context.Background(), "unknown@example.com", "secret1")
	_, errWrong := f.auth.LoginPassword(context.Background(), "known@example.com", "wrong-pass")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, apperr.KindOf(errUnknown), apperr.KindOf(errWrong))
}

func TestLoginPassword_WalletAccountGetsMethodHint(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "wallet@example.com", w)

	_, err := f.auth.LoginPassword(context.Background(), "wallet@example.com", "whatever")
	assert.ErrorIs(t, err, ErrWalletAccount)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestLoginPassword_NeverAdmin(t *testing.T) {
	f := newFixture(t)
	account := f.registerPassword(t, "admin@example.com", "secret1")
	f.makeAdmin(t, account.ID)

	res, err := f.auth.LoginPassword(context.Background(), "admin@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, res.Account.Role)
	assert.Zero(t, f.authority.callCount())
}

func TestIssueChallenge(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "w@example.com", w)

	ch, err := f.auth.IssueChallenge(context.Background(), w.checksum())
	require.NoError(t, err)
	assert.Len(t, ch.Nonce, 64)
	assert.Equal(t, testLoginPreamble+ch.Nonce, ch.Message)

	stored := f.store.get(account.ID)
	require.NotNil(t, stored.Nonce)
	assert.Equal(t, ch.Nonce, *stored.Nonce)

	again, err := f.auth.IssueChallenge(context.Background(), w.address)
	require.NoError(t, err)
	assert.NotEqual(t, ch.Nonce, again.Nonce)
}

func TestIssueChallenge_UnknownWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.IssueChallenge(context.Background(), newWallet(t).address)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = f.auth.IssueChallenge(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidWallet)
}

func TestLoginWallet_Scenario(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)

	res, err := f.auth.LoginWallet(ctx, w.checksum(), w.sign(t, ch.Message))
	require.NoError(t, err)
	assert.Equal(t, account.ID, res.Account.ID)
	assert.Equal(t, models.RoleUser, res.Account.Role)

	stored := f.store.get(account.ID)
	if stored.Nonce != nil {
		assert.NotEqual(t, ch.Nonce, *stored.Nonce)
	}
	assert.Zero(t, f.authority.callCount())
}

func TestLoginWallet_NonceIsSingleUse(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, ch.Message)

	_, err = f.auth.LoginWallet(ctx, w.address, sig)
	require.NoError(t, err)

	_, err = f.auth.LoginWallet(ctx, w.address, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLoginWallet_FailedAttemptBurnsNonce(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	other := newWallet(t)
	account := f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)

	_, err = f.auth.LoginWallet(ctx, w.address, other.sign(t, ch.Message))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, f.store.get(account.ID).Nonce)

	_, err = f.auth.LoginWallet(ctx, w.address, w.sign(t, ch.Message))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLoginWallet_MalformedSignatureBurnsNonce(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "w@example.com", w)

	_, err := f.auth.IssueChallenge(context.Background(), w.address)
	require.NoError(t, err)

	_, err = f.auth.LoginWallet(context.Background(), w.address, "0xdeadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, f.store.get(account.ID).Nonce)
}

func TestLoginWallet_ExpiredNonce(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	_, err := f.store.SetNonce(ctx, w.address, "stale", time.Now().Add(-time.Second))
	require.NoError(t, err)

	_, err = f.auth.LoginWallet(ctx, w.address, w.sign(t, testLoginPreamble+"stale"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLoginWallet_WithoutChallenge(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "w@example.com", w)

	_, err := f.auth.LoginWallet(context.Background(), w.address, w.sign(t, testLoginPreamble))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLoginWallet_UnknownWallet(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)

	_, err := f.auth.LoginWallet(context.Background(), w.address, w.sign(t, "x"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLoginWallet_ConcurrentAttemptsSucceedAtMostOnce(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, ch.Message)

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.auth.LoginWallet(ctx, w.address, sig); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestLoginWallet_AdminConfirmedByRegistry(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "admin@example.com", w)
	f.makeAdmin(t, account.ID)
	f.authority.set(w.address, true)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)
	res, err := f.auth.LoginWallet(ctx, w.address, w.sign(t, ch.Message))
	require.NoError(t, err)

	assert.Equal(t, models.RoleAdmin, res.Account.Role)
	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginWallet_AdminRevokedOnChainIsDemoted(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "admin@example.com", w)
	f.makeAdmin(t, account.ID)
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)
	res, err := f.auth.LoginWallet(ctx, w.address, w.sign(t, ch.Message))
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, res.Account.Role)
	assert.Equal(t, models.RoleUser, f.store.get(account.ID).Role)
	assert.Contains(t, f.audit.actions(), "role_revoked_by_registry")
	assert.Contains(t, f.publisher.types(), "role_changed")
}

func TestLoginWallet_RegistryUnavailableFailsClosed(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "admin@example.com", w)
	f.makeAdmin(t, account.ID)
	f.authority.set(w.address, true)
	f.authority.delay = 2 * time.Second
	ctx := context.Background()

	ch, err := f.auth.IssueChallenge(ctx, w.address)
	require.NoError(t, err)

	started := time.Now()
	res, err := f.auth.LoginWallet(ctx, w.address, w.sign(t, ch.Message))
	require.NoError(t, err)

	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, models.RoleUser, res.Account.Role)
	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, models.RoleAdmin, f.store.get(account.ID).Role)
}

func TestLoginWallet_ChecksumAndLowercaseAreSameAccount(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)
	account := f.registerWallet(t, "w@example.com", w)
	ctx := context.Background()

	require.NotNil(t, account.WalletAddress)
	assert.Equal(t, w.address, *account.WalletAddress)

	ch, err := f.auth.IssueChallenge(ctx, strings.ToUpper(w.address[:2])+strings.ToUpper(w.address[2:]))
	require.NoError(t, err)
	res, err := f.auth.LoginWallet(ctx, w.address, w.sign(t, ch.Message))
	require.NoError(t, err)
	assert.Equal(t, account.ID, res.Account.ID)
}
