package pg

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) AddRefreshToken(ctx context.Context, subjectID, digest string, expiresAt time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (subject_id, token_hash, expires_at)
		values ($1, $2, $3)
		on conflict (subject_id, token_hash) do update set expires_at = excluded.expires_at
	`, subjectID, digest, expiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// ReplaceRefreshToken deletes the old digest and inserts the new one in one
// transaction. Concurrent callers holding the same old digest serialize on
// the row; only the first sees it deleted.
func (s *Store) ReplaceRefreshToken(ctx context.Context, subjectID, oldDigest, newDigest string, expiresAt time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		delete from refresh_tokens
		where subject_id = $1 and token_hash = $2 and expires_at > now()
	`, subjectID, oldDigest)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (subject_id, token_hash, expires_at)
		values ($1, $2, $3)
		on conflict (subject_id, token_hash) do update set expires_at = excluded.expires_at
	`, subjectID, newDigest, expiresAt); err != nil {
		return false, fmt.Errorf("insert refresh token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, subjectID, digest string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from refresh_tokens where subject_id = $1 and token_hash = $2
	`, subjectID, digest)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) HasRefreshToken(ctx context.Context, subjectID, digest string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from refresh_tokens
			where subject_id = $1 and token_hash = $2 and expires_at > now()
		)
	`, subjectID, digest).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return ok, nil
}

// PurgeExpiredRefreshTokens deletes tokens past their expiry.
func (s *Store) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
