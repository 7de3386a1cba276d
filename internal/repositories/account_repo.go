package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, full_name, email, password_hash, wallet_address, nonce, nonce_expires_at, role, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.FullName, &a.Email, &a.PasswordHash, &a.WalletAddress,
		&a.Nonce, &a.NonceExpiresAt, &a.Role, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (full_name, email, password_hash, wallet_address, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, a.FullName, a.Email, a.PasswordHash, a.WalletAddress, a.Role).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return mapError(err)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

// GetByWallet expects a normalized address.
func (r *AccountRepo) GetByWallet(ctx context.Context, wallet string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE wallet_address = $1`, wallet))
}

func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// ListByRole pages through accounts with role in id order, starting after the
// given id. Keyset paging keeps the walk stable while rows change role.
func (r *AccountRepo) ListByRole(ctx context.Context, role string, after uuid.UUID, limit int) ([]models.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE role = $1 AND id > $2
		ORDER BY id ASC LIMIT $3
	`, role, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET full_name = $2, email = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns, id, fullName, email))
}

// UpdatePassword only touches password accounts.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND password_hash IS NOT NULL
		RETURNING `+accountColumns, id, hash))
}

// UpdateWallet replaces the wallet of a wallet account. The outstanding nonce is
// cleared and the role drops to user until the new wallet is confirmed.
func (r *AccountRepo) UpdateWallet(ctx context.Context, id uuid.UUID, wallet string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET wallet_address = $2, nonce = NULL, nonce_expires_at = NULL, role = 'user', updated_at = now()
		WHERE id = $1 AND wallet_address IS NOT NULL
		RETURNING `+accountColumns, id, wallet))
}

func (r *AccountRepo) SwitchToWallet(ctx context.Context, id uuid.UUID, wallet string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = NULL, wallet_address = $2, nonce = NULL, nonce_expires_at = NULL,
		    role = 'user', updated_at = now()
		WHERE id = $1 AND password_hash IS NOT NULL
		RETURNING `+accountColumns, id, wallet))
}

func (r *AccountRepo) SwitchToPassword(ctx context.Context, id uuid.UUID, hash string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET wallet_address = NULL, nonce = NULL, nonce_expires_at = NULL, password_hash = $2,
		    role = 'user', updated_at = now()
		WHERE id = $1 AND wallet_address IS NOT NULL
		RETURNING `+accountColumns, id, hash))
}

func (r *AccountRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns, id, role))
}

// SetNonce stores a login challenge for a wallet, replacing any outstanding one.
func (r *AccountRepo) SetNonce(ctx context.Context, wallet, nonce string, expiresAt time.Time) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET nonce = $2, nonce_expires_at = $3
		WHERE wallet_address = $1
		RETURNING `+accountColumns, wallet, nonce, expiresAt))
}

// ConsumeNonce clears the account's nonce unconditionally and reports whether
// the cleared value was used and still live. The row lock taken by the CTE
// serialises concurrent consumers, so only one of them can observe a match.
func (r *AccountRepo) ConsumeNonce(ctx context.Context, id uuid.UUID, used string) (bool, error) {
	var matched bool
	err := r.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT nonce, nonce_expires_at FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a SET nonce = NULL, nonce_expires_at = NULL
		FROM prev
		WHERE a.id = $1
		RETURNING COALESCE(prev.nonce = $2 AND prev.nonce_expires_at > now(), false)
	`, id, used).Scan(&matched)
	if err != nil {
		return false, mapError(err)
	}
	return matched, nil
}

func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
