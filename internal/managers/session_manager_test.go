package managers

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T, cache *redis.Client) (SessionMgr, pgxmock.PgxPoolIface) {
	t.Helper()

	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return NewSessionManagerWithKeys(privateKey, publicKey, 7*24*time.Hour, poolMock, cache), poolMock
}

func ledgerRow(userId uuid.UUID, isValid bool, expiresAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"user_id", "is_valid", "expires_at"}).
		AddRow(pgtype.UUID{Bytes: userId, Valid: true}, isValid, expiresAt)
}

func TestIssueAndValidate(t *testing.T) {
	sessionMgr, poolMock := newTestSessionManager(t, nil)
	userId := uuid.New()

	poolMock.ExpectExec("INSERT INTO kith_schema.session_tokens").
		WithArgs(pgxmock.AnyArg(), userId.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokenString, session, err := sessionMgr.IssueToken(context.Background(), poolMock, userId.String())
	require.NoError(t, err)
	assert.True(t, session.IsValid)
	assert.Equal(t, userId.String(), session.UserID.String())

	poolMock.ExpectQuery("SELECT user_id, is_valid, expires_at").
		WithArgs(session.JTI.String()).
		WillReturnRows(ledgerRow(userId, true, session.ExpiresAt))

	claims, err := sessionMgr.Validate(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, userId.String(), claims.UserID)
	assert.Equal(t, session.JTI.String(), claims.JTI)

	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestValidateRejectsRevokedLedgerRow(t *testing.T) {
	sessionMgr, poolMock := newTestSessionManager(t, nil)
	userId := uuid.New()

	poolMock.ExpectExec("INSERT INTO kith_schema.session_tokens").
		WithArgs(pgxmock.AnyArg(), userId.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokenString, session, err := sessionMgr.IssueToken(context.Background(), poolMock, userId.String())
	require.NoError(t, err)

	// The token is cryptographically valid and unexpired, but the ledger says no.
	poolMock.ExpectQuery("SELECT user_id, is_valid, expires_at").
		WithArgs(session.JTI.String()).
		WillReturnRows(ledgerRow(userId, false, session.ExpiresAt))

	_, err = sessionMgr.Validate(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestValidateRejectsUserMismatch(t *testing.T) {
	sessionMgr, poolMock := newTestSessionManager(t, nil)
	userId := uuid.New()

	poolMock.ExpectExec("INSERT INTO kith_schema.session_tokens").
		WithArgs(pgxmock.AnyArg(), userId.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokenString, session, err := sessionMgr.IssueToken(context.Background(), poolMock, userId.String())
	require.NoError(t, err)

	poolMock.ExpectQuery("SELECT user_id, is_valid, expires_at").
		WithArgs(session.JTI.String()).
		WillReturnRows(ledgerRow(uuid.New(), true, session.ExpiresAt))

	_, err = sessionMgr.Validate(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	sessionMgr, _ := newTestSessionManager(t, nil)

	_, err := sessionMgr.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestValidateServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	sessionMgr, poolMock := newTestSessionManager(t, cache)
	userId := uuid.New()

	poolMock.ExpectExec("INSERT INTO kith_schema.session_tokens").
		WithArgs(pgxmock.AnyArg(), userId.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokenString, session, err := sessionMgr.IssueToken(context.Background(), poolMock, userId.String())
	require.NoError(t, err)

	cached, err := mr.Get("session:" + session.JTI.String())
	require.NoError(t, err)
	assert.Equal(t, userId.String(), cached)

	// No SELECT expectation: the lookup must be answered by the cache.
	claims, err := sessionMgr.Validate(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, userId.String(), claims.UserID)

	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestValidateDoesNotRepopulateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	sessionMgr, poolMock := newTestSessionManager(t, cache)
	userId := uuid.New()

	poolMock.ExpectExec("INSERT INTO kith_schema.session_tokens").
		WithArgs(pgxmock.AnyArg(), userId.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokenString, session, err := sessionMgr.IssueToken(context.Background(), poolMock, userId.String())
	require.NoError(t, err)

	// A revoke elsewhere dropped the cache entry; the ledger read that follows
	// must not write it back.
	mr.Del("session:" + session.JTI.String())

	poolMock.ExpectQuery("SELECT user_id, is_valid, expires_at").
		WithArgs(session.JTI.String()).
		WillReturnRows(ledgerRow(userId, true, session.ExpiresAt))

	_, err = sessionMgr.Validate(context.Background(), tokenString)
	require.NoError(t, err)

	assert.False(t, mr.Exists("session:"+session.JTI.String()))
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestExtendTokenLosesToConcurrentRevoke(t *testing.T) {
	sessionMgr, poolMock := newTestSessionManager(t, nil)
	userId := uuid.New().String()
	jti := uuid.New().String()

	poolMock.ExpectExec("UPDATE kith_schema.session_tokens SET expires_at").
		WithArgs(pgxmock.AnyArg(), jti, userId).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := sessionMgr.ExtendToken(context.Background(), poolMock, userId, jti, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInvalidateSpecificDropsCacheEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	sessionMgr, poolMock := newTestSessionManager(t, cache)
	userId := uuid.New()
	jti := uuid.New()

	require.NoError(t, mr.Set("session:"+jti.String(), userId.String()))

	poolMock.ExpectQuery("UPDATE kith_schema.session_tokens SET is_valid = FALSE").
		WithArgs(jti.String(), userId.String()).
		WillReturnRows(pgxmock.NewRows([]string{"jti"}).AddRow(jti))

	err := sessionMgr.Invalidate(context.Background(), poolMock, userId.String(), InvalidateSpecific, jti.String())
	require.NoError(t, err)

	assert.False(t, mr.Exists("session:"+jti.String()))
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestInvalidateOthersSparesCurrentSession(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	sessionMgr, poolMock := newTestSessionManager(t, cache)
	userId := uuid.New()
	currentJti := uuid.New()
	otherJti := uuid.New()

	require.NoError(t, mr.Set("session:"+currentJti.String(), userId.String()))
	require.NoError(t, mr.Set("session:"+otherJti.String(), userId.String()))

	poolMock.ExpectQuery("UPDATE kith_schema.session_tokens SET is_valid = FALSE").
		WithArgs(userId.String(), currentJti.String()).
		WillReturnRows(pgxmock.NewRows([]string{"jti"}).AddRow(otherJti))

	err := sessionMgr.Invalidate(context.Background(), poolMock, userId.String(), InvalidateOthers, currentJti.String())
	require.NoError(t, err)

	assert.True(t, mr.Exists("session:"+currentJti.String()))
	assert.False(t, mr.Exists("session:"+otherJti.String()))
}

func TestInvalidateAllRevokesEverySession(t *testing.T) {
	sessionMgr, poolMock := newTestSessionManager(t, nil)
	userId := uuid.New()

	poolMock.ExpectQuery("UPDATE kith_schema.session_tokens SET is_valid = FALSE").
		WithArgs(userId.String()).
		WillReturnRows(pgxmock.NewRows([]string{"jti"}).AddRow(uuid.New()).AddRow(uuid.New()))

	err := sessionMgr.Invalidate(context.Background(), poolMock, userId.String(), InvalidateAll, "")
	require.NoError(t, err)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestKeyPairRoundTrip(t *testing.T) {
	path := t.TempDir() + "/keypair.bin"

	privateKey, publicKey, err := generateKeyPair(path)
	require.NoError(t, err)

	loadedPrivate, loadedPublic, err := loadKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, privateKey, loadedPrivate)
	assert.Equal(t, publicKey, loadedPublic)
}
