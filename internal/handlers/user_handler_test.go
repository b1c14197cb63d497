package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

const testDisplayNameCooldown = 30 * 24 * time.Hour

func newSetDisplayNameContext(t *testing.T, callerId, displayName string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/users/setDisplayName", nil)
	ctx.Set(utils.ClaimsKey.String(), &schemas.SessionClaims{UserID: callerId, JTI: uuid.New().String()})
	ctx.Set(utils.SanitizedPayloadKey.String(), &schemas.SetDisplayNameRequest{DisplayName: displayName})
	return ctx, recorder
}

func TestSetDisplayNameRejectedWithinCooldown(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	handler := NewUserHandler(managers.NewDatabaseManager(poolMock), nil, testDisplayNameCooldown, "")

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT display_name, activated_at FROM kith_schema.display_names").
		WithArgs(callerId).
		WillReturnRows(pgxmock.NewRows([]string{"display_name", "activated_at"}).
			AddRow("Old Name", time.Now().Add(-time.Hour)))
	poolMock.ExpectRollback()

	ctx, recorder := newSetDisplayNameContext(t, callerId, "New Name")
	handler.SetDisplayName(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := schemas.Response{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Contains(t, response.Message, "change your display name again")
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestSetDisplayNameUnchangedRejected(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	handler := NewUserHandler(managers.NewDatabaseManager(poolMock), nil, testDisplayNameCooldown, "")

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT display_name, activated_at FROM kith_schema.display_names").
		WithArgs(callerId).
		WillReturnRows(pgxmock.NewRows([]string{"display_name", "activated_at"}).
			AddRow("Same Name", time.Now().Add(-2*testDisplayNameCooldown)))
	poolMock.ExpectRollback()

	ctx, recorder := newSetDisplayNameContext(t, callerId, "Same Name")
	handler.SetDisplayName(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := schemas.Response{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestSetDisplayNameAfterCooldown(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	handler := NewUserHandler(managers.NewDatabaseManager(poolMock), nil, testDisplayNameCooldown, "")

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT display_name, activated_at FROM kith_schema.display_names").
		WithArgs(callerId).
		WillReturnRows(pgxmock.NewRows([]string{"display_name", "activated_at"}).
			AddRow("Old Name", time.Now().Add(-testDisplayNameCooldown-24*time.Hour)))
	poolMock.ExpectExec("UPDATE kith_schema.display_names SET is_active = FALSE").
		WithArgs(callerId).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	poolMock.ExpectQuery("SELECT COALESCE").
		WithArgs("New Name").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(4))
	poolMock.ExpectExec("INSERT INTO kith_schema.display_names").
		WithArgs(pgxmock.AnyArg(), callerId, "New Name", 4, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectCommit()
	poolMock.ExpectRollback()

	ctx, recorder := newSetDisplayNameContext(t, callerId, "New Name")
	handler.SetDisplayName(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := schemas.SetDisplayNameResponseDTO{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, 4, response.DisplayNameIndex)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func newVerifyDisplayNameContext(t *testing.T, callerId, profileName string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/users/"+profileName+"/displayNames/verify", nil)
	ctx.Params = gin.Params{{Key: utils.ProfileNameKey, Value: profileName}}
	ctx.Set(utils.ClaimsKey.String(), &schemas.SessionClaims{UserID: callerId, JTI: uuid.New().String()})
	return ctx, recorder
}

func TestVerifyDisplayNameForbiddenWithoutRole(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	guard := middleware.RequireRole(managers.NewRoleManager(), managers.NewDatabaseManager(poolMock), managers.AdministratorRole)

	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(callerId, managers.AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ctx, recorder := newVerifyDisplayNameContext(t, callerId, "targetuser")
	guard(ctx)

	assert.True(t, ctx.IsAborted())
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestVerifyDisplayNameByAdministrator(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	targetId := uuid.New()
	roleMgr := managers.NewRoleManager()
	databaseMgr := managers.NewDatabaseManager(poolMock)
	handler := NewUserHandler(databaseMgr, nil, testDisplayNameCooldown, "")

	// Promote the caller first, then pass the role gate with the fresh grant.
	roleId := uuid.New()
	poolMock.ExpectQuery("SELECT role_id FROM kith_schema.roles").
		WithArgs(managers.AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"role_id"}).AddRow(roleId))
	poolMock.ExpectExec("INSERT INTO kith_schema.user_roles").
		WithArgs(callerId, roleId).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx, recorder := newVerifyDisplayNameContext(t, callerId, "targetuser")
	require.NoError(t, roleMgr.GrantRole(ctx, poolMock, callerId, managers.AdministratorRole))

	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(callerId, managers.AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	guard := middleware.RequireRole(roleMgr, databaseMgr, managers.AdministratorRole)
	guard(ctx)
	require.False(t, ctx.IsAborted())

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT user_id, public_access, profile_picture_url FROM kith_schema.users").
		WithArgs("targetuser").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "public_access", "profile_picture_url"}).
			AddRow(targetId, true, ""))
	poolMock.ExpectExec("UPDATE kith_schema.display_names SET is_verified = TRUE").
		WithArgs(&targetId).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	poolMock.ExpectCommit()
	poolMock.ExpectRollback()

	handler.VerifyDisplayName(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	response := schemas.Response{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestVerifyDisplayNameUnknownUser(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New().String()
	handler := NewUserHandler(managers.NewDatabaseManager(poolMock), nil, testDisplayNameCooldown, "")

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT user_id, public_access, profile_picture_url FROM kith_schema.users").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	poolMock.ExpectRollback()

	ctx, recorder := newVerifyDisplayNameContext(t, callerId, "nobody")
	handler.VerifyDisplayName(ctx)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}
