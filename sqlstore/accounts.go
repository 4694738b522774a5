package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/eduAuth"
)

const accountColumns = `id, email, password_hash, role, is_active, is_verified, display_name, picture_url,
	provider, provider_id, provider_email, provider_verified_email, linked_at, created_at, updated_at`

// Accounts is an [eduAuth.AccountStore] over the accounts table.
type Accounts struct {
	db *DB
}

// NewAccounts returns the account store backed by db.
func NewAccounts(db *DB) *Accounts {
	return &Accounts{db: db}
}

var _ eduAuth.AccountStore = (*Accounts)(nil)

// FindByEmail matches the lowercased address.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (*eduAuth.Account, error) {
	return a.findOne(ctx, "find account by email",
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (a *Accounts) FindByExternalID(ctx context.Context, provider, externalID string) (*eduAuth.Account, error) {
	return a.findOne(ctx, "find account by external id",
		`SELECT `+accountColumns+` FROM accounts WHERE provider = ? AND provider_id = ?`,
		provider, externalID)
}

func (a *Accounts) FindByID(ctx context.Context, id string) (*eduAuth.Account, error) {
	return a.findOne(ctx, "find account by id",
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// Create inserts account. The email is stored lowercased and timestamps
// default to now when unset.
func (a *Accounts) Create(ctx context.Context, account *eduAuth.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id is required")
	}
	now := a.db.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	ext := externalColumns(account.ExternalIdentity)
	_, err := a.db.exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Email, account.PasswordHash, account.Role,
		boolInt(account.IsActive), boolInt(account.IsVerified),
		account.DisplayName, account.PictureURL,
		ext.provider, ext.providerID, ext.providerEmail, ext.providerVerified, ext.linkedAt,
		toMillis(account.CreatedAt), toMillis(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create account: %w", ErrDuplicate)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of account.
func (a *Accounts) Update(ctx context.Context, account *eduAuth.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id is required")
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = a.db.now().UTC()
	}
	ext := externalColumns(account.ExternalIdentity)
	res, err := a.db.exec(ctx, `UPDATE accounts SET
		email = ?, password_hash = ?, role = ?, is_active = ?, is_verified = ?,
		display_name = ?, picture_url = ?,
		provider = ?, provider_id = ?, provider_email = ?, provider_verified_email = ?, linked_at = ?,
		updated_at = ?
		WHERE id = ?`,
		strings.ToLower(strings.TrimSpace(account.Email)), account.PasswordHash, account.Role,
		boolInt(account.IsActive), boolInt(account.IsVerified),
		account.DisplayName, account.PictureURL,
		ext.provider, ext.providerID, ext.providerEmail, ext.providerVerified, ext.linkedAt,
		toMillis(account.UpdatedAt), account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update account: %w", ErrDuplicate)
		}
		return fmt.Errorf("update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update account %s: %w", account.ID, sql.ErrNoRows)
	}
	return nil
}

func (a *Accounts) findOne(ctx context.Context, op, query string, args ...any) (*eduAuth.Account, error) {
	var (
		account          eduAuth.Account
		isActive         int
		isVerified       int
		provider         sql.NullString
		providerID       sql.NullString
		providerEmail    sql.NullString
		providerVerified sql.NullInt64
		linkedAt         sql.NullInt64
		createdAt        int64
		updatedAt        int64
	)
	err := a.db.queryRow(ctx, query, args...).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.Role,
		&isActive, &isVerified, &account.DisplayName, &account.PictureURL,
		&provider, &providerID, &providerEmail, &providerVerified, &linkedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account.IsActive = isActive != 0
	account.IsVerified = isVerified != 0
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	if provider.Valid && providerID.Valid {
		account.ExternalIdentity = &eduAuth.ExternalIdentity{
			Provider:              provider.String,
			ProviderID:            providerID.String,
			ProviderEmail:         providerEmail.String,
			ProviderVerifiedEmail: providerVerified.Valid && providerVerified.Int64 != 0,
		}
		if linkedAt.Valid {
			account.ExternalIdentity.LinkedAt = fromMillis(linkedAt.Int64)
		}
	}
	return &account, nil
}

type externalRow struct {
	provider         sql.NullString
	providerID       sql.NullString
	providerEmail    sql.NullString
	providerVerified sql.NullInt64
	linkedAt         sql.NullInt64
}

// externalColumns maps a missing identity to NULLs so the
// (provider, provider_id) unique index ignores unlinked accounts.
func externalColumns(ext *eduAuth.ExternalIdentity) externalRow {
	if ext == nil {
		return externalRow{}
	}
	row := externalRow{
		provider:         sql.NullString{String: ext.Provider, Valid: true},
		providerID:       sql.NullString{String: ext.ProviderID, Valid: true},
		providerEmail:    sql.NullString{String: ext.ProviderEmail, Valid: true},
		providerVerified: sql.NullInt64{Int64: int64(boolInt(ext.ProviderVerifiedEmail)), Valid: true},
	}
	if !ext.LinkedAt.IsZero() {
		row.linkedAt = sql.NullInt64{Int64: toMillis(ext.LinkedAt), Valid: true}
	}
	return row
}
