package managers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kithnet/server-core/internal/interfaces"
)

var (
	// ErrResetUserNotFound is returned when no account matches the email. The HTTP
	// layer must still answer with the success shape to stay enumeration-resistant.
	ErrResetUserNotFound = errors.New("no user for email")
	// ErrTooManyResetTokens is returned when the per-user cap of concurrently
	// unexpired tokens is reached.
	ErrTooManyResetTokens = errors.New("too many active reset tokens")
	// ErrResetTokenInvalid is returned when the token does not exist, belongs to
	// another account or has expired.
	ErrResetTokenInvalid = errors.New("reset token invalid")
)

// ResetMgr manages the password reset token lifecycle: issuance under a
// per-user cap, validation and the redeem path that rotates the password and
// logs every session out.
type ResetMgr interface {
	Generate(ctx context.Context, q interfaces.Querier, email string) (string, error)
	Validate(ctx context.Context, q interfaces.Querier, token, email string) (bool, error)
	Redeem(ctx context.Context, q interfaces.Querier, token, email, newPassword string) error
	PurgeExpired(ctx context.Context, q interfaces.Querier) error
}

// ResetManager implements ResetMgr on the Postgres token table.
type ResetManager struct {
	sessionMgr SessionMgr
	expiration time.Duration
	maxActive  int
}

// NewResetManager returns a reset manager enforcing the given token lifetime
// and per-user active cap. Redeeming delegates session revocation to the
// session manager.
func NewResetManager(sessionMgr SessionMgr, expiration time.Duration, maxActive int) ResetMgr {
	return &ResetManager{
		sessionMgr: sessionMgr,
		expiration: expiration,
		maxActive:  maxActive,
	}
}

// Generate creates a fresh 36-character reset token for the account behind the
// email. Issuance is blocked while the user already holds maxActive unexpired
// tokens; old tokens stay usable until they expire.
func (rm *ResetManager) Generate(ctx context.Context, q interfaces.Querier, email string) (string, error) {
	queryString := "SELECT user_id FROM kith_schema.users WHERE email = $1"
	var userId uuid.UUID
	if err := q.QueryRow(ctx, queryString, email).Scan(&userId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrResetUserNotFound
		}
		return "", err
	}

	queryString = "SELECT COUNT(*) FROM kith_schema.password_reset_tokens WHERE user_id = $1 AND expires_at > NOW()"
	var activeTokens int
	if err := q.QueryRow(ctx, queryString, userId).Scan(&activeTokens); err != nil {
		return "", err
	}

	if activeTokens >= rm.maxActive {
		return "", ErrTooManyResetTokens
	}

	token := uuid.New().String()
	expiresAt := time.Now().Add(rm.expiration)

	queryString = "INSERT INTO kith_schema.password_reset_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)"
	if _, err := q.Exec(ctx, queryString, token, userId, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// Validate reports whether the token exists, belongs to the account behind the
// email and is unexpired. Validation alone does not consume the token.
func (rm *ResetManager) Validate(ctx context.Context, q interfaces.Querier, token, email string) (bool, error) {
	_, err := rm.lookup(ctx, q, token, email)
	if errors.Is(err, ErrResetTokenInvalid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Redeem re-validates the token, rotates the password hash, consumes the token
// and revokes every session of the user. A password reset that leaves sessions
// alive would defeat its purpose, so the revocation is not optional.
func (rm *ResetManager) Redeem(ctx context.Context, q interfaces.Querier, token, email, newPassword string) error {
	userId, err := rm.lookup(ctx, q, token, email)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	queryString := "UPDATE kith_schema.users SET password = $1 WHERE user_id = $2"
	if _, err := q.Exec(ctx, queryString, hashedPassword, userId); err != nil {
		return err
	}

	queryString = "DELETE FROM kith_schema.password_reset_tokens WHERE token = $1"
	if _, err := q.Exec(ctx, queryString, token); err != nil {
		return err
	}

	return rm.sessionMgr.Invalidate(ctx, q, userId.String(), InvalidateAll, "")
}

// PurgeExpired removes expired tokens. Called from the periodic housekeeping
// task, never from a request path.
func (rm *ResetManager) PurgeExpired(ctx context.Context, q interfaces.Querier) error {
	_, err := q.Exec(ctx, "DELETE FROM kith_schema.password_reset_tokens WHERE expires_at <= NOW()")
	return err
}

func (rm *ResetManager) lookup(ctx context.Context, q interfaces.Querier, token, email string) (uuid.UUID, error) {
	queryString := "SELECT u.user_id FROM kith_schema.password_reset_tokens t " +
		"JOIN kith_schema.users u ON t.user_id = u.user_id " +
		"WHERE t.token = $1 AND u.email = $2 AND t.expires_at > NOW()"

	var userId uuid.UUID
	if err := q.QueryRow(ctx, queryString, token, email).Scan(&userId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, ErrResetTokenInvalid
		}
		return uuid.UUID{}, err
	}

	return userId, nil
}
