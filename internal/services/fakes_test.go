package services

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/auth"
	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"github.com/insidebox/backend/internal/repositories"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// memStore mirrors the constraints of the accounts table.
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	failRole error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	if a.PasswordHash != nil {
		v := *a.PasswordHash
		c.PasswordHash = &v
	}
	if a.WalletAddress != nil {
		v := *a.WalletAddress
		c.WalletAddress = &v
	}
	if a.Nonce != nil {
		v := *a.Nonce
		c.Nonce = &v
	}
	if a.NonceExpiresAt != nil {
		v := *a.NonceExpiresAt
		c.NonceExpiresAt = &v
	}
	return &c
}

func (m *memStore) conflict(id uuid.UUID, email string, wallet *string) error {
	for _, a := range m.accounts {
		if a.ID == id {
			continue
		}
		if strings.EqualFold(a.Email, email) {
			return repositories.ErrDuplicateEmail
		}
		if wallet != nil && a.WalletAddress != nil && *a.WalletAddress == *wallet {
			return repositories.ErrDuplicateWallet
		}
	}
	return nil
}

func (m *memStore) Create(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (a.PasswordHash == nil) == (a.WalletAddress == nil) {
		return errors.New("accounts_one_credential")
	}
	if err := m.conflict(uuid.Nil, a.Email, a.WalletAddress); err != nil {
		return err
	}
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (m *memStore) put(a *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	m.accounts[a.ID] = cloneAccount(a)
	return cloneAccount(a)
}

func (m *memStore) get(id uuid.UUID) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	return cloneAccount(a)
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if a := m.get(id); a != nil {
		return a, nil
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) GetByWallet(_ context.Context, wallet string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.WalletAddress != nil && *a.WalletAddress == wallet {
			return cloneAccount(a), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Account
	for _, a := range m.accounts {
		all = append(all, *cloneAccount(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) ListByRole(_ context.Context, role string, after uuid.UUID, limit int) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if a.Role == role && bytes.Compare(a.ID[:], after[:]) > 0 {
			out = append(out, *cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// update applies fn to the stored row when cond holds, like an UPDATE ...
// WHERE ... RETURNING.
func (m *memStore) update(id uuid.UUID, cond func(*models.Account) bool, fn func(*models.Account) error) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || (cond != nil && !cond(a)) {
		return nil, repositories.ErrNotFound
	}
	next := cloneAccount(a)
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := m.conflict(id, next.Email, next.WalletAddress); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	m.accounts[id] = next
	return cloneAccount(next), nil
}

func isPassword(a *models.Account) bool { return a.PasswordHash != nil }
func isWallet(a *models.Account) bool   { return a.WalletAddress != nil }

func clearNonce(a *models.Account) {
	a.Nonce = nil
	a.NonceExpiresAt = nil
}

func (m *memStore) UpdateProfile(_ context.Context, id uuid.UUID, fullName, email string) (*models.Account, error) {
	return m.update(id, nil, func(a *models.Account) error {
		a.FullName = fullName
		a.Email = email
		return nil
	})
}

func (m *memStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) (*models.Account, error) {
	return m.update(id, isPassword, func(a *models.Account) error {
		a.PasswordHash = &hash
		return nil
	})
}

func (m *memStore) UpdateWallet(_ context.Context, id uuid.UUID, wallet string) (*models.Account, error) {
	return m.update(id, isWallet, func(a *models.Account) error {
		a.WalletAddress = &wallet
		a.Role = models.RoleUser
		clearNonce(a)
		return nil
	})
}

func (m *memStore) SwitchToWallet(_ context.Context, id uuid.UUID, wallet string) (*models.Account, error) {
	return m.update(id, isPassword, func(a *models.Account) error {
		a.PasswordHash = nil
		a.WalletAddress = &wallet
		a.Role = models.RoleUser
		clearNonce(a)
		return nil
	})
}

func (m *memStore) SwitchToPassword(_ context.Context, id uuid.UUID, hash string) (*models.Account, error) {
	return m.update(id, isWallet, func(a *models.Account) error {
		a.WalletAddress = nil
		a.PasswordHash = &hash
		a.Role = models.RoleUser
		clearNonce(a)
		return nil
	})
}

func (m *memStore) UpdateRole(_ context.Context, id uuid.UUID, role string) (*models.Account, error) {
	if m.failRole != nil {
		return nil, m.failRole
	}
	return m.update(id, nil, func(a *models.Account) error {
		a.Role = role
		return nil
	})
}

func (m *memStore) SetNonce(_ context.Context, wallet, nonce string, expiresAt time.Time) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.WalletAddress != nil && *a.WalletAddress == wallet {
			a.Nonce = &nonce
			a.NonceExpiresAt = &expiresAt
			return cloneAccount(a), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memStore) ConsumeNonce(_ context.Context, id uuid.UUID, used string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	live := a.Nonce != nil && *a.Nonce == used &&
		a.NonceExpiresAt != nil && a.NonceExpiresAt.After(time.Now())
	clearNonce(a)
	return live, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

type memChallenges struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemChallenges() *memChallenges {
	return &memChallenges{entries: make(map[string]string)}
}

func (c *memChallenges) Issue(_ context.Context, purpose, subject, wallet string, _ time.Duration) (string, error) {
	nonce, err := repositories.GenerateNonce()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[purpose+":"+subject+":"+wallet] = nonce
	return nonce, nil
}

func (c *memChallenges) Consume(_ context.Context, purpose, subject, wallet string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := purpose + ":" + subject + ":" + wallet
	nonce, ok := c.entries[key]
	if !ok {
		return "", repositories.ErrNotFound
	}
	delete(c.entries, key)
	return nonce, nil
}

type fakeAuthority struct {
	mu     sync.Mutex
	admins map[string]bool
	err    error
	delay  time.Duration
	calls  int
}

func newFakeAuthority(admins ...string) *fakeAuthority {
	f := &fakeAuthority{admins: make(map[string]bool)}
	for _, a := range admins {
		f.admins[a] = true
	}
	return f
}

func (f *fakeAuthority) IsAdmin(ctx context.Context, wallet string) (bool, error) {
	f.mu.Lock()
	f.calls++
	delay, err, ok := f.delay, f.err, f.admins[wallet]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (f *fakeAuthority) set(wallet string, admin bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[wallet] = admin
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *memAudit) Log(_ context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) ListForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		about := e.EntityType == "account" && e.EntityID != nil && *e.EntityID == accountID
		by := e.ActorAccountID != nil && *e.ActorAccountID == accountID
		if about || by {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *memPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

const (
	testLoginPreamble        = "Sign in to InsideBox: "
	testRegistrationPreamble = "Register with InsideBox: "
	testLinkPreamble         = "Link wallet to InsideBox: "
)

type fixture struct {
	store      *memStore
	challenges *memChallenges
	authority  *fakeAuthority
	audit      *memAudit
	publisher  *memPublisher
	tokens     *auth.SessionIssuer
	hasher     *auth.PasswordHasher
	reconciler *RoleReconciler
	auth       *AuthService
	accounts   *AccountService
	admin      *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	f := &fixture{
		store:      newMemStore(),
		challenges: newMemChallenges(),
		authority:  newFakeAuthority(),
		audit:      &memAudit{},
		publisher:  &memPublisher{},
		tokens:     auth.NewSessionIssuer("test-secret", time.Hour),
		hasher:     auth.NewPasswordHasher(bcrypt.MinCost),
	}
	settings := AuthSettings{
		Preambles: Preambles{
			Login:        testLoginPreamble,
			Registration: testRegistrationPreamble,
			Link:         testLinkPreamble,
		},
		NonceTTL:          time.Minute,
		PasswordMinLength: 6,
	}
	f.reconciler = NewRoleReconciler(f.store, f.authority, 200*time.Millisecond, f.audit, f.publisher, log)
	f.auth = NewAuthService(f.store, f.challenges, f.reconciler, f.tokens, f.hasher, f.audit, f.publisher, settings, log)
	f.accounts = NewAccountService(f.store, f.challenges, f.hasher, f.audit, f.publisher, settings, log)
	f.admin = NewAdminService(f.store, f.reconciler, f.audit, f.audit, f.publisher, log)
	return f
}

type testWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{key: key, address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())}
}

// checksum returns the mixed-case form a wallet UI would display.
func (w testWallet) checksum() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (f *fixture) registerPassword(t *testing.T, email, password string) *models.Account {
	t.Helper()
	res, err := f.auth.Register(context.Background(), RegisterInput{
		FullName: "Test User",
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return res.Account
}

func (f *fixture) registerWallet(t *testing.T, email string, w testWallet) *models.Account {
	t.Helper()
	ctx := context.Background()
	ch, err := f.auth.IssueRegistrationChallenge(ctx, w.address)
	require.NoError(t, err)
	res, err := f.auth.Register(ctx, RegisterInput{
		FullName:      "Wallet User",
		Email:         email,
		WalletAddress: w.checksum(),
		Signature:     w.sign(t, ch.Message),
	})
	require.NoError(t, err)
	return res.Account
}

func (f *fixture) makeAdmin(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := f.store.UpdateRole(context.Background(), id, models.RoleAdmin)
	require.NoError(t, err)
}

var _ chain.Authority = (*fakeAuthority)(nil)
