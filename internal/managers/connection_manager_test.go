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

func newTestConnectionManager(t *testing.T) (ConnectionMgr, pgxmock.PgxPoolIface) {
	t.Helper()

	poolMock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(poolMock.Close)

	return NewConnectionManager(), poolMock
}

func typeRows(names ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"type_id", "type_name"})
	for _, name := range names {
		rows.AddRow(uuid.New(), name)
	}
	return rows
}

func TestUpsertRejectsSelfConnection(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	userId := uuid.New().String()

	_, err := connectionMgr.UpsertOutgoingEdge(context.Background(), poolMock, userId, userId, []string{"Friend"})
	assert.ErrorIs(t, err, ErrSelfConnection)
}

func TestUpsertRejectsEmptyResolvedTypeSet(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)

	// Unknown names are dropped silently, but nothing may remain.
	poolMock.ExpectQuery("SELECT type_id, type_name FROM kith_schema.connection_types").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(typeRows())

	_, err := connectionMgr.UpsertOutgoingEdge(context.Background(), poolMock, uuid.New().String(), uuid.New().String(), []string{"Nemesis"})
	assert.ErrorIs(t, err, ErrNoConnectionTypes)
}

func TestUpsertCreatesEdgeAndRecomputesMutuality(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	fromUserId := uuid.New().String()
	toUserId := uuid.New().String()

	poolMock.ExpectQuery("SELECT type_id, type_name FROM kith_schema.connection_types").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(typeRows("Friend"))
	poolMock.ExpectQuery("SELECT connection_id FROM kith_schema.connections").
		WithArgs(fromUserId, toUserId).
		WillReturnError(pgx.ErrNoRows)
	poolMock.ExpectExec("INSERT INTO kith_schema.connections").
		WithArgs(pgxmock.AnyArg(), fromUserId, toUserId, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectExec("DELETE FROM kith_schema.connection_type_links").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	poolMock.ExpectExec("INSERT INTO kith_schema.connection_type_links").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Reverse edge exists, so both directions flip to mutual.
	poolMock.ExpectQuery("SELECT connection_id FROM kith_schema.connections").
		WithArgs(toUserId, fromUserId).
		WillReturnRows(pgxmock.NewRows([]string{"connection_id"}).AddRow(uuid.New()))
	poolMock.ExpectExec("UPDATE kith_schema.connections SET is_mutual").
		WithArgs(fromUserId, toUserId, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	poolMock.ExpectExec("UPDATE kith_schema.connections SET is_mutual").
		WithArgs(toUserId, fromUserId, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	action, err := connectionMgr.UpsertOutgoingEdge(context.Background(), poolMock, fromUserId, toUserId, []string{"Friend"})
	require.NoError(t, err)
	assert.Equal(t, ActionAdded, action)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestUpsertSameTypeSetIsNoOp(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	fromUserId := uuid.New().String()
	toUserId := uuid.New().String()
	edgeId := uuid.New()

	poolMock.ExpectQuery("SELECT type_id, type_name FROM kith_schema.connection_types").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(typeRows("Friend", "Colleague"))
	poolMock.ExpectQuery("SELECT connection_id FROM kith_schema.connections").
		WithArgs(fromUserId, toUserId).
		WillReturnRows(pgxmock.NewRows([]string{"connection_id"}).AddRow(edgeId))
	poolMock.ExpectQuery("SELECT ct.type_name FROM kith_schema.connection_type_links").
		WithArgs(edgeId).
		WillReturnRows(pgxmock.NewRows([]string{"type_name"}).AddRow("Colleague").AddRow("Friend"))

	action, err := connectionMgr.UpsertOutgoingEdge(context.Background(), poolMock, fromUserId, toUserId, []string{"Friend", "Colleague"})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestUpsertRetypesExistingEdge(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	fromUserId := uuid.New().String()
	toUserId := uuid.New().String()
	edgeId := uuid.New()

	poolMock.ExpectQuery("SELECT type_id, type_name FROM kith_schema.connection_types").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(typeRows("Family"))
	poolMock.ExpectQuery("SELECT connection_id FROM kith_schema.connections").
		WithArgs(fromUserId, toUserId).
		WillReturnRows(pgxmock.NewRows([]string{"connection_id"}).AddRow(edgeId))
	poolMock.ExpectQuery("SELECT ct.type_name FROM kith_schema.connection_type_links").
		WithArgs(edgeId).
		WillReturnRows(pgxmock.NewRows([]string{"type_name"}).AddRow("Friend"))
	poolMock.ExpectExec("DELETE FROM kith_schema.connection_type_links").
		WithArgs(edgeId).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	poolMock.ExpectExec("INSERT INTO kith_schema.connection_type_links").
		WithArgs(edgeId, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	poolMock.ExpectQuery("SELECT connection_id FROM kith_schema.connections").
		WithArgs(toUserId, fromUserId).
		WillReturnError(pgx.ErrNoRows)
	poolMock.ExpectExec("UPDATE kith_schema.connections SET is_mutual").
		WithArgs(fromUserId, toUserId, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	action, err := connectionMgr.UpsertOutgoingEdge(context.Background(), poolMock, fromUserId, toUserId, []string{"Family"})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestRemoveMutualEdgeFlipsReverse(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	fromUserId := uuid.New().String()
	toUserId := uuid.New().String()

	poolMock.ExpectQuery("DELETE FROM kith_schema.connections").
		WithArgs(fromUserId, toUserId).
		WillReturnRows(pgxmock.NewRows([]string{"is_mutual"}).AddRow(true))
	poolMock.ExpectExec("UPDATE kith_schema.connections SET is_mutual = FALSE").
		WithArgs(toUserId, fromUserId).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	wasMutual, err := connectionMgr.RemoveOutgoingEdge(context.Background(), poolMock, fromUserId, toUserId)
	require.NoError(t, err)
	assert.True(t, wasMutual)
	assert.NoError(t, poolMock.ExpectationsWereMet())
}

func TestRemoveMissingEdge(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)

	poolMock.ExpectQuery("DELETE FROM kith_schema.connections").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := connectionMgr.RemoveOutgoingEdge(context.Background(), poolMock, uuid.New().String(), uuid.New().String())
	assert.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestListIncomingExcludesReciprocatedEdges(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)
	userId := uuid.New().String()

	poolMock.ExpectQuery("NOT EXISTS").
		WithArgs(userId).
		WillReturnRows(pgxmock.NewRows([]string{"profile_name", "display_name", "is_mutual", "types"}).
			AddRow("ada", "Ada", false, []string{"Friend"}))

	edges, err := connectionMgr.ListIncoming(context.Background(), poolMock, userId)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "ada", edges[0].ProfileName)
	assert.Equal(t, []string{"Friend"}, edges[0].ConnectionTypes)
	assert.False(t, edges[0].IsMutual)
}

func TestListTypes(t *testing.T) {
	connectionMgr, poolMock := newTestConnectionManager(t)

	poolMock.ExpectQuery("SELECT type_name FROM kith_schema.connection_types").
		WillReturnRows(pgxmock.NewRows([]string{"type_name"}).
			AddRow("Acquaintance").AddRow("Colleague").AddRow("Family").AddRow("Friend"))

	types, err := connectionMgr.ListTypes(context.Background(), poolMock)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acquaintance", "Colleague", "Family", "Friend"}, types)
}
