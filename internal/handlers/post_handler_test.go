package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

func newDeletePostContext(t *testing.T, callerId, postId string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodDelete, "/api/posts/"+postId, nil)
	ctx.Params = gin.Params{{Key: utils.PostIdKey, Value: postId}}
	ctx.Set(utils.ClaimsKey.String(), &schemas.SessionClaims{UserID: callerId, JTI: uuid.New().String()})
	return ctx, recorder
}

func TestDeletePostByAuthor(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New()
	postId := uuid.New()
	handler := NewPostHandler(managers.NewDatabaseManager(poolMock), managers.NewRoleManager())

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT author_id FROM kith_schema.posts").
		WithArgs(postId).
		WillReturnRows(pgxmock.NewRows([]string{"author_id"}).AddRow(callerId))
	poolMock.ExpectExec("DELETE FROM kith_schema.posts").
		WithArgs(postId).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	poolMock.ExpectCommit()
	poolMock.ExpectRollback()

	ctx, recorder := newDeletePostContext(t, callerId.String(), postId.String())
	handler.DeletePost(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestDeletePostForbiddenForStranger(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New()
	postId := uuid.New()
	handler := NewPostHandler(managers.NewDatabaseManager(poolMock), managers.NewRoleManager())

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT author_id FROM kith_schema.posts").
		WithArgs(postId).
		WillReturnRows(pgxmock.NewRows([]string{"author_id"}).AddRow(uuid.New()))
	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(callerId.String(), managers.AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	poolMock.ExpectRollback()

	ctx, recorder := newDeletePostContext(t, callerId.String(), postId.String())
	handler.DeletePost(ctx)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestDeletePostAdministratorOverride(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	callerId := uuid.New()
	postId := uuid.New()
	handler := NewPostHandler(managers.NewDatabaseManager(poolMock), managers.NewRoleManager())

	poolMock.ExpectBegin()
	poolMock.ExpectQuery("SELECT author_id FROM kith_schema.posts").
		WithArgs(postId).
		WillReturnRows(pgxmock.NewRows([]string{"author_id"}).AddRow(uuid.New()))
	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(callerId.String(), managers.AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	poolMock.ExpectExec("DELETE FROM kith_schema.posts").
		WithArgs(postId).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	poolMock.ExpectCommit()
	poolMock.ExpectRollback()

	ctx, recorder := newDeletePostContext(t, callerId.String(), postId.String())
	handler.DeletePost(ctx)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}
