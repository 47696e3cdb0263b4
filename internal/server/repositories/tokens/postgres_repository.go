package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.Token) (*models.Token, error) {
	query := `
		INSERT INTO tokens (account_id, type, token_hash, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.AccountID, string(token.Type), token.TokenHash, token.ExpiresAt, token.IP, token.UserAgent,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, hash string, typ models.TokenType, now time.Time) (*models.Token, error) {
	query := `
		UPDATE tokens
		SET used_at = $3, revoked = TRUE
		WHERE token_hash = $1 AND type = $2 AND revoked = FALSE AND used_at IS NULL AND expires_at > $3
		RETURNING id, account_id, expires_at, created_at
	`
	t := &models.Token{Type: typ, TokenHash: hash, Revoked: true, UsedAt: &now}
	err := r.db.QueryRowContext(ctx, query, hash, string(typ), now).
		Scan(&t.ID, &t.AccountID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) RevokeByHash(ctx context.Context, hash string, typ models.TokenType, now time.Time) (bool, error) {
	query := `
		UPDATE tokens
		SET revoked = TRUE, used_at = COALESCE(used_at, $3)
		WHERE token_hash = $1 AND type = $2 AND revoked = FALSE
	`
	n, err := r.exec(ctx, query, hash, string(typ), now)
	return n > 0, err
}

func (r *PostgresRepository) ListActive(ctx context.Context, accountID string, typ models.TokenType, limit int) ([]models.Session, error) {
	query := `
		SELECT id, created_at, expires_at, ip, user_agent
		FROM tokens
		WHERE account_id = $1 AND type = $2 AND revoked = FALSE
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, string(typ), limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.ExpiresAt, &s.IP, &s.UserAgent); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sessions, nil
}

func (r *PostgresRepository) RevokeOwned(ctx context.Context, id, accountID string, typ models.TokenType, now time.Time) (bool, error) {
	query := `
		UPDATE tokens
		SET revoked = TRUE, used_at = COALESCE(used_at, $4)
		WHERE id = $1 AND account_id = $2 AND type = $3 AND revoked = FALSE
	`
	n, err := r.exec(ctx, query, id, accountID, string(typ), now)
	return n > 0, err
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE tokens
		SET revoked = TRUE, used_at = COALESCE(used_at, $2)
		WHERE id = $1
	`
	n, err := r.exec(ctx, query, id, now)
	return n > 0, err
}

func (r *PostgresRepository) RevokeAllForAccount(ctx context.Context, accountID string, typ models.TokenType, now time.Time) (int64, error) {
	query := `
		UPDATE tokens
		SET revoked = TRUE, used_at = COALESCE(used_at, $3)
		WHERE account_id = $1 AND type = $2 AND revoked = FALSE
	`
	return r.exec(ctx, query, accountID, string(typ), now)
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE expires_at < $1 OR (revoked = TRUE AND COALESCE(used_at, created_at) < $1)
	`
	return r.exec(ctx, query, before)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
