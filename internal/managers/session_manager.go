package managers

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/kithnet/server-core/internal/interfaces"
	"github.com/kithnet/server-core/internal/schemas"
)

// InvalidationMode selects which of a user's sessions a revocation targets.
type InvalidationMode int

const (
	// InvalidateSpecific revokes only the current session.
	InvalidateSpecific InvalidationMode = iota
	// InvalidateOthers revokes every valid session of the user except the current one.
	InvalidateOthers
	// InvalidateAll revokes every valid session of the user, the current one included.
	InvalidateAll
)

var (
	// ErrSessionInvalid is returned when a token fails the cryptographic or the ledger check.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionNotFound is returned when no matching valid ledger row exists.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionMgr is the session token authority. It issues, validates, extends and
// revokes bearer tokens, with the server-side ledger as the source of truth for
// liveness: a token is usable only while its jti has a valid ledger row that
// still names the token's user.
type SessionMgr interface {
	IssueToken(ctx context.Context, q interfaces.Querier, userId string) (string, *schemas.SessionToken, error)
	ExtendToken(ctx context.Context, q interfaces.Querier, userId, jti string, expiresAt time.Time) error
	Validate(ctx context.Context, tokenString string) (*schemas.SessionClaims, error)
	Invalidate(ctx context.Context, q interfaces.Querier, userId string, mode InvalidationMode, currentJti string) error
	SessionDuration() time.Duration
}

// SessionManager implements SessionMgr with EdDSA-signed JWTs, the Postgres
// ledger and an optional Redis read-through cache for validity lookups.
type SessionManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	pool       interfaces.PgxPoolIface
	cache      *redis.Client
	expiration time.Duration
}

const sessionIssuer = "kithnet.app"

// NewSessionManager loads the signing key pair from the given path, generating
// one on first start, and returns a ready session manager. A nil cache client
// degrades validity lookups to ledger-only reads.
func NewSessionManager(keyPairPath string, expirationDays int, pool interfaces.PgxPoolIface, cache *redis.Client) (SessionMgr, error) {
	privateKey, publicKey, err := loadKeyPair(keyPairPath)
	if err != nil {
		// No key yet for initial setup, generate a new key pair
		privateKey, publicKey, err = generateKeyPair(keyPairPath)
		if err != nil {
			return nil, err
		}
	}

	return NewSessionManagerWithKeys(privateKey, publicKey, time.Duration(expirationDays)*24*time.Hour, pool, cache), nil
}

// NewSessionManagerWithKeys builds a session manager from an in-memory key pair.
func NewSessionManagerWithKeys(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, expiration time.Duration, pool interfaces.PgxPoolIface, cache *redis.Client) SessionMgr {
	return &SessionManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		pool:       pool,
		cache:      cache,
		expiration: expiration,
	}
}

// SessionDuration returns the configured lifetime of a freshly issued session.
func (sm *SessionManager) SessionDuration() time.Duration {
	return sm.expiration
}

// IssueToken signs a fresh token for the user and records it in the ledger.
// The ledger write is part of the caller's transaction: a failed write means no
// token, so a login cannot claim success without a secured session.
func (sm *SessionManager) IssueToken(ctx context.Context, q interfaces.Querier, userId string) (string, *schemas.SessionToken, error) {
	jti := uuid.New()
	now := time.Now()
	expiresAt := now.Add(sm.expiration)

	claims := jwt.MapClaims{
		"iss": sessionIssuer,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"sub": userId,
		"jti": jti.String(),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(sm.privateKey)
	if err != nil {
		return "", nil, err
	}

	queryString := "INSERT INTO kith_schema.session_tokens (jti, user_id, expires_at, is_valid) VALUES ($1, $2, $3, TRUE)"
	if _, err := q.Exec(ctx, queryString, jti, userId, expiresAt); err != nil {
		return "", nil, err
	}

	sm.cacheSet(ctx, jti.String(), userId, expiresAt)

	userUuid, err := uuid.Parse(userId)
	if err != nil {
		return "", nil, err
	}

	session := &schemas.SessionToken{
		JTI:       jti,
		UserID:    &userUuid,
		ExpiresAt: expiresAt,
		IsValid:   true,
	}
	return tokenString, session, nil
}

// ExtendToken pushes the ledger expiry of an existing session out, used when a
// client re-logs-in while already holding a live cookie. The update is
// conditional on the row still being valid so a concurrent revoke wins.
func (sm *SessionManager) ExtendToken(ctx context.Context, q interfaces.Querier, userId, jti string, expiresAt time.Time) error {
	queryString := "UPDATE kith_schema.session_tokens SET expires_at = $1 WHERE jti = $2 AND user_id = $3 AND is_valid = TRUE"
	tag, err := q.Exec(ctx, queryString, expiresAt, jti, userId)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	sm.cacheSet(ctx, jti, userId, expiresAt)
	return nil
}

// Validate checks the token cryptographically, then against the ledger. Both
// checks must pass; the ledger check is what makes server-initiated revocation
// effective before cryptographic expiry.
func (sm *SessionManager) Validate(ctx context.Context, tokenString string) (*schemas.SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("invalid signing method")
		}
		return sm.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSessionInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrSessionInvalid
	}

	userId, _ := mapClaims["sub"].(string)
	jti, _ := mapClaims["jti"].(string)
	if userId == "" || jti == "" {
		return nil, ErrSessionInvalid
	}

	if sm.cacheMatches(ctx, jti, userId) {
		return &schemas.SessionClaims{UserID: userId, JTI: jti}, nil
	}

	queryString := "SELECT user_id, is_valid, expires_at FROM kith_schema.session_tokens WHERE jti = $1"
	row := sm.pool.QueryRow(ctx, queryString, jti)

	var ledgerUserId pgtype.UUID
	var isValid bool
	var expiresAt time.Time
	if err := row.Scan(&ledgerUserId, &isValid, &expiresAt); err != nil {
		return nil, ErrSessionInvalid
	}

	if !isValid || !ledgerUserId.Valid || time.Now().After(expiresAt) {
		return nil, ErrSessionInvalid
	}

	if uuid.UUID(ledgerUserId.Bytes).String() != userId {
		return nil, ErrSessionInvalid
	}

	// Only IssueToken and ExtendToken write the cache. Repopulating here could
	// race Invalidate's delete and resurrect a revoked jti until its TTL.
	return &schemas.SessionClaims{UserID: userId, JTI: jti}, nil
}

// Invalidate soft-revokes ledger rows according to the mode. Rows are kept for
// audit: is_valid flips, user_id is cleared and former_user_id stamped so a
// revoked jti can never match again.
func (sm *SessionManager) Invalidate(ctx context.Context, q interfaces.Querier, userId string, mode InvalidationMode, currentJti string) error {
	var queryString string
	var args []any

	revocation := "UPDATE kith_schema.session_tokens SET is_valid = FALSE, former_user_id = user_id, user_id = NULL, revoked_at = NOW()"
	switch mode {
	case InvalidateSpecific:
		queryString = revocation + " WHERE jti = $1 AND user_id = $2 AND is_valid = TRUE RETURNING jti"
		args = []any{currentJti, userId}
	case InvalidateOthers:
		queryString = revocation + " WHERE user_id = $1 AND is_valid = TRUE AND jti <> $2 RETURNING jti"
		args = []any{userId, currentJti}
	case InvalidateAll:
		queryString = revocation + " WHERE user_id = $1 AND is_valid = TRUE RETURNING jti"
		args = []any{userId}
	default:
		return fmt.Errorf("unknown invalidation mode %d", mode)
	}

	rows, err := q.Query(ctx, queryString, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	revoked := make([]string, 0)
	for rows.Next() {
		var jti uuid.UUID
		if err := rows.Scan(&jti); err != nil {
			return err
		}
		revoked = append(revoked, jti.String())
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sm.cacheDelete(ctx, revoked)
	return nil
}

func sessionCacheKey(jti string) string {
	return "session:" + jti
}

func (sm *SessionManager) cacheSet(ctx context.Context, jti, userId string, expiresAt time.Time) {
	if sm.cache == nil {
		return
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}

	if err := sm.cache.Set(ctx, sessionCacheKey(jti), userId, ttl).Err(); err != nil {
		log.Warn("Error writing session cache: ", err)
	}
}

func (sm *SessionManager) cacheMatches(ctx context.Context, jti, userId string) bool {
	if sm.cache == nil {
		return false
	}

	cached, err := sm.cache.Get(ctx, sessionCacheKey(jti)).Result()
	return err == nil && cached == userId
}

func (sm *SessionManager) cacheDelete(ctx context.Context, jtis []string) {
	if sm.cache == nil || len(jtis) == 0 {
		return
	}

	keys := make([]string, len(jtis))
	for i, jti := range jtis {
		keys[i] = sessionCacheKey(jti)
	}

	if err := sm.cache.Del(ctx, keys...).Err(); err != nil {
		log.Warn("Error deleting session cache entries: ", err)
	}
}

// generateKeyPair generates a new key pair and saves it to a file.
func generateKeyPair(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	if err = saveKeyPair(privateKey, publicKey, path); err != nil {
		return nil, nil, err
	}

	return privateKey, publicKey, nil
}

// saveKeyPair saves the key pair to the specified file.
func saveKeyPair(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, path string) error {
	keyPairBytes := append(privateKey, publicKey...)
	return os.WriteFile(path, keyPairBytes, 0600)
}

// loadKeyPair loads the key pair from the specified file.
func loadKeyPair(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	keyPairBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	// The key pair is the concatenation of private and public keys
	if len(keyPairBytes) != ed25519.PrivateKeySize+ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("invalid key pair format")
	}

	return keyPairBytes[:ed25519.PrivateKeySize], keyPairBytes[ed25519.PrivateKeySize:], nil
}
