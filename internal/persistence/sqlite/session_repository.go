package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/hall-allocation/internal/persistence"
)

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// CreateSession stores a new session token for a user
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	session.Token = strings.TrimSpace(session.Token)
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.UpdatedAt = session.CreatedAt

	_, err := s.exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		formatTimePtr(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// GetSession retrieves a session by its token value
func (s *Storage) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return s.scanSession(s.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
}

// UpdateSession updates the mutable fields of an existing session
func (s *Storage) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	var updated persistence.Session
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			current, err := s.scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, session.ID))
			if err != nil {
				return err
			}

			updated = session
			updated.UserID = current.UserID
			updated.CreatedAt = current.CreatedAt
			updated.Token = strings.TrimSpace(session.Token)
			if updated.UpdatedAt.IsZero() {
				updated.UpdatedAt = time.Now().UTC()
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE sessions
				SET token = ?, fingerprint = ?, expires_at = ?, revoked_at = ?, updated_at = ?
				WHERE id = ?`,
				updated.Token,
				updated.Fingerprint,
				formatTime(updated.ExpiresAt),
				formatTimePtr(updated.RevokedAt),
				formatTime(updated.UpdatedAt),
				updated.ID,
			)
			return err
		})
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return updated, nil
}

// RevokeSession marks a session as revoked based on its token value. Revoking
// an already revoked session keeps the original revocation time.
func (s *Storage) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var revoked persistence.Session
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			current, err := s.scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
			if err != nil {
				return err
			}
			if current.RevokedAt != nil {
				revoked = current
				return nil
			}

			stamp := revokedAt.UTC()
			current.RevokedAt = &stamp
			current.UpdatedAt = stamp
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE id = ?`,
				formatTime(stamp), formatTime(stamp), current.ID,
			); err != nil {
				return err
			}
			revoked = current
			return nil
		})
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return revoked, nil
}

// DeleteExpiredSessions removes sessions that expired before reference
func (s *Storage) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := s.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return err
}

func (s *Storage) scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := row.Scan(&session.ID, &session.UserID, &session.Token, &session.Fingerprint,
		&expiresAt, &revokedAt, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Session{}, s.mapper.MapError(err)
	}

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
