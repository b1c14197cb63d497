package managers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasRoleReportsMembership(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	roleMgr := NewRoleManager()
	userId := uuid.New().String()

	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(userId, AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	isMember, err := roleMgr.HasRole(context.Background(), poolMock, userId, AdministratorRole)
	require.NoError(t, err)
	assert.False(t, isMember)

	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(userId, AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	isMember, err = roleMgr.HasRole(context.Background(), poolMock, userId, AdministratorRole)
	require.NoError(t, err)
	assert.True(t, isMember)

	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestGrantRoleAddsMembership(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	roleMgr := NewRoleManager()
	userId := uuid.New().String()
	roleId := uuid.New()

	poolMock.ExpectQuery("SELECT role_id FROM kith_schema.roles").
		WithArgs(AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"role_id"}).AddRow(roleId))
	poolMock.ExpectExec("INSERT INTO kith_schema.user_roles").
		WithArgs(userId, roleId).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = roleMgr.GrantRole(context.Background(), poolMock, userId, AdministratorRole)
	require.NoError(t, err)

	poolMock.ExpectQuery("SELECT EXISTS").
		WithArgs(userId, AdministratorRole).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	isMember, err := roleMgr.HasRole(context.Background(), poolMock, userId, AdministratorRole)
	require.NoError(t, err)
	assert.True(t, isMember)

	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestGrantRoleUnknownRole(t *testing.T) {
	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	roleMgr := NewRoleManager()

	poolMock.ExpectQuery("SELECT role_id FROM kith_schema.roles").
		WithArgs("Overlord").
		WillReturnError(pgx.ErrNoRows)

	err = roleMgr.GrantRole(context.Background(), poolMock, uuid.New().String(), "Overlord")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}
