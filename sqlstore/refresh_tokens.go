package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/google/uuid"
)

const refreshColumns = `id, user_id, token_hash, expires_at, used, revoked, created_at, updated_at`

// RefreshTokens is a [refresh.Store] over the refresh_tokens table. Rows are
// never deleted; MarkUsed is a conditional UPDATE so exactly one caller wins.
type RefreshTokens struct {
	db *DB
}

// NewRefreshTokens returns the refresh store backed by db.
func NewRefreshTokens(db *DB) *RefreshTokens {
	return &RefreshTokens{db: db}
}

var _ refresh.Store = (*RefreshTokens)(nil)

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
}

func (s *RefreshTokens) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*refresh.Record, error) {
	if userID == "" || token == "" {
		return nil, errors.New("refresh: user id and token are required")
	}
	now := s.db.now().UTC()
	rec := &refresh.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: fromMillis(toMillis(expiresAt)),
		CreatedAt: fromMillis(toMillis(now)),
		UpdatedAt: fromMillis(toMillis(now)),
	}
	_, err := s.db.exec(ctx, `INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		rec.ID, rec.UserID, rec.TokenHash, toMillis(rec.ExpiresAt), toMillis(now), toMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create refresh record: %w", ErrDuplicate)
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *RefreshTokens) FindByToken(ctx context.Context, token string) (*refresh.Record, error) {
	return s.findOne(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, internal.HashToken(token))
}

// Update sets the flags in patch. Flags already set stay set.
func (s *RefreshTokens) Update(ctx context.Context, id string, patch refresh.Update) (*refresh.Record, error) {
	sets := []string{"updated_at = ?"}
	if patch.MarkUsed {
		sets = append(sets, "used = 1")
	}
	if patch.Revoke {
		sets = append(sets, "revoked = 1")
	}
	res, err := s.db.exec(ctx, `UPDATE refresh_tokens SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		toMillis(s.db.now()), id)
	if err != nil {
		return nil, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable(err)
	}
	if n == 0 {
		return nil, refresh.ErrNotFound
	}

	rec, err := s.findOne(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, refresh.ErrNotFound
	}
	return rec, nil
}

func (s *RefreshTokens) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.exec(ctx,
		`UPDATE refresh_tokens SET used = 1, updated_at = ? WHERE id = ? AND used = 0 AND revoked = 0`,
		toMillis(s.db.now()), id)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	if n == 1 {
		return true, nil
	}

	var found int
	err = s.db.queryRow(ctx, `SELECT 1 FROM refresh_tokens WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, refresh.ErrNotFound
	}
	if err != nil {
		return false, unavailable(err)
	}
	return false, nil
}

func (s *RefreshTokens) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.exec(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE user_id = ? AND revoked = 0`,
		toMillis(s.db.now()), userID)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *RefreshTokens) ListForUser(ctx context.Context, userID string) ([]*refresh.Record, error) {
	rows, err := s.db.query(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []*refresh.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *RefreshTokens) findOne(ctx context.Context, query string, args ...any) (*refresh.Record, error) {
	rec, err := scanRecord(s.db.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*refresh.Record, error) {
	var (
		rec       refresh.Record
		expiresAt int64
		used      int
		revoked   int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &expiresAt, &used, &revoked, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.Used = used != 0
	rec.Revoked = revoked != 0
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}
