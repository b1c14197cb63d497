package managers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kithnet/server-core/internal/interfaces"
	"github.com/kithnet/server-core/internal/schemas"
)

// ActionTaken signals what an edge upsert actually did.
type ActionTaken string

const (
	ActionNone    ActionTaken = "none"
	ActionAdded   ActionTaken = "added"
	ActionUpdated ActionTaken = "updated"
)

var (
	// ErrSelfConnection is returned when a user tries to connect to themselves.
	ErrSelfConnection = errors.New("cannot connect to self")
	// ErrNoConnectionTypes is returned when the requested type set resolves to
	// nothing against the catalog. Unknown names are dropped silently, but the
	// remaining set must be non-empty.
	ErrNoConnectionTypes = errors.New("no valid connection types")
	// ErrEdgeNotFound is returned when the directed edge does not exist.
	ErrEdgeNotFound = errors.New("connection not found")
)

// ConnectionMgr maintains the directed connection graph: typed edges from a
// requester to a recipient, with mutuality recomputed and stored on both
// directions at every mutation. No other component writes the edge tables.
type ConnectionMgr interface {
	UpsertOutgoingEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string, connectionTypes []string) (ActionTaken, error)
	RemoveOutgoingEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string) (bool, error)
	GetEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string) (*schemas.UserConnectionDTO, error)
	ListOutgoing(ctx context.Context, q interfaces.Querier, userId string) ([]schemas.UserConnectionDTO, error)
	ListIncoming(ctx context.Context, q interfaces.Querier, userId string) ([]schemas.UserConnectionDTO, error)
	ListTypes(ctx context.Context, q interfaces.Querier) ([]string, error)
}

// ConnectionManager implements ConnectionMgr on the Postgres edge tables.
type ConnectionManager struct{}

// NewConnectionManager returns the connection graph manager.
func NewConnectionManager() ConnectionMgr {
	return &ConnectionManager{}
}

// UpsertOutgoingEdge creates or updates the directed edge with the given type
// set. A concurrent insert of the same edge surfaces as a unique violation and
// is treated as "someone else just created this edge": the call falls back to
// the update path instead of erroring.
func (cm *ConnectionManager) UpsertOutgoingEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string, connectionTypes []string) (ActionTaken, error) {
	if fromUserId == toUserId {
		return ActionNone, ErrSelfConnection
	}

	typeIds, typeNames, err := resolveConnectionTypes(ctx, q, connectionTypes)
	if err != nil {
		return ActionNone, err
	}
	if len(typeIds) == 0 {
		return ActionNone, ErrNoConnectionTypes
	}

	edgeId, existingTypes, err := loadEdge(ctx, q, fromUserId, toUserId)
	if err != nil && !errors.Is(err, ErrEdgeNotFound) {
		return ActionNone, err
	}

	if errors.Is(err, ErrEdgeNotFound) {
		edgeId = uuid.New()
		queryString := "INSERT INTO kith_schema.connections (connection_id, requester_id, recipient_id, is_mutual, created_at) VALUES ($1, $2, $3, FALSE, $4)"
		if _, err := q.Exec(ctx, queryString, edgeId, fromUserId, toUserId, time.Now()); err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
				return ActionNone, err
			}

			// Lost the race: the edge exists now, continue as an update.
			edgeId, existingTypes, err = loadEdge(ctx, q, fromUserId, toUserId)
			if err != nil {
				return ActionNone, err
			}

			if err := replaceEdgeTypes(ctx, q, edgeId, typeIds); err != nil {
				return ActionNone, err
			}
			return ActionUpdated, recomputeMutuality(ctx, q, fromUserId, toUserId)
		}

		if err := replaceEdgeTypes(ctx, q, edgeId, typeIds); err != nil {
			return ActionNone, err
		}
		return ActionAdded, recomputeMutuality(ctx, q, fromUserId, toUserId)
	}

	if sameTypeSet(existingTypes, typeNames) {
		return ActionNone, nil
	}

	if err := replaceEdgeTypes(ctx, q, edgeId, typeIds); err != nil {
		return ActionNone, err
	}
	return ActionUpdated, recomputeMutuality(ctx, q, fromUserId, toUserId)
}

// RemoveOutgoingEdge deletes the directed edge and reports whether it had been
// mutual, so the caller knows the peer's edge re-surfaces as incoming. The
// reverse edge, if present, flips to non-mutual.
func (cm *ConnectionManager) RemoveOutgoingEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string) (bool, error) {
	queryString := "DELETE FROM kith_schema.connections WHERE requester_id = $1 AND recipient_id = $2 RETURNING is_mutual"
	var wasMutual bool
	if err := q.QueryRow(ctx, queryString, fromUserId, toUserId).Scan(&wasMutual); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrEdgeNotFound
		}
		return false, err
	}

	if wasMutual {
		queryString = "UPDATE kith_schema.connections SET is_mutual = FALSE WHERE requester_id = $1 AND recipient_id = $2"
		if _, err := q.Exec(ctx, queryString, toUserId, fromUserId); err != nil {
			return false, err
		}
	}

	return wasMutual, nil
}

// GetEdge returns the client-facing view of one outgoing edge.
func (cm *ConnectionManager) GetEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string) (*schemas.UserConnectionDTO, error) {
	queryString := edgeSelect + " WHERE c.requester_id = $1 AND c.recipient_id = $2 " + edgeGroup
	rows, err := q.Query(ctx, queryString, fromUserId, toUserId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, ErrEdgeNotFound
	}

	return &edges[0], nil
}

// ListOutgoing returns every edge the user has created, mutual ones included.
func (cm *ConnectionManager) ListOutgoing(ctx context.Context, q interfaces.Querier, userId string) ([]schemas.UserConnectionDTO, error) {
	queryString := edgeSelect + " WHERE c.requester_id = $1 " + edgeGroup
	rows, err := q.Query(ctx, queryString, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEdges(rows)
}

// ListIncoming returns edges pointing at the user from peers the user has not
// connected back to. Mutual pairs are excluded: those are represented by the
// outgoing edge on each side.
func (cm *ConnectionManager) ListIncoming(ctx context.Context, q interfaces.Querier, userId string) ([]schemas.UserConnectionDTO, error) {
	queryString := incomingSelect + " WHERE c.recipient_id = $1 AND NOT EXISTS " +
		"(SELECT 1 FROM kith_schema.connections r WHERE r.requester_id = $1 AND r.recipient_id = c.requester_id) " + edgeGroup
	rows, err := q.Query(ctx, queryString, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEdges(rows)
}

// ListTypes returns the global relationship-type catalog.
func (cm *ConnectionManager) ListTypes(ctx context.Context, q interfaces.Querier) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT type_name FROM kith_schema.connection_types ORDER BY type_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]string, 0)
	for rows.Next() {
		var typeName string
		if err := rows.Scan(&typeName); err != nil {
			return nil, err
		}
		types = append(types, typeName)
	}

	return types, rows.Err()
}

const edgeSelect = "SELECT u.profile_name, COALESCE(d.display_name, ''), c.is_mutual, array_agg(ct.type_name ORDER BY ct.type_name) " +
	"FROM kith_schema.connections c " +
	"JOIN kith_schema.users u ON u.user_id = c.recipient_id " +
	"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active " +
	"JOIN kith_schema.connection_type_links l ON l.connection_id = c.connection_id " +
	"JOIN kith_schema.connection_types ct ON ct.type_id = l.type_id"

const incomingSelect = "SELECT u.profile_name, COALESCE(d.display_name, ''), c.is_mutual, array_agg(ct.type_name ORDER BY ct.type_name) " +
	"FROM kith_schema.connections c " +
	"JOIN kith_schema.users u ON u.user_id = c.requester_id " +
	"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active " +
	"JOIN kith_schema.connection_type_links l ON l.connection_id = c.connection_id " +
	"JOIN kith_schema.connection_types ct ON ct.type_id = l.type_id"

const edgeGroup = "GROUP BY u.profile_name, d.display_name, c.is_mutual, c.created_at ORDER BY c.created_at DESC"

func scanEdges(rows pgx.Rows) ([]schemas.UserConnectionDTO, error) {
	edges := make([]schemas.UserConnectionDTO, 0)
	for rows.Next() {
		edge := schemas.UserConnectionDTO{}
		if err := rows.Scan(&edge.ProfileName, &edge.DisplayName, &edge.IsMutual, &edge.ConnectionTypes); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

// resolveConnectionTypes maps requested names onto the catalog. Lookups are
// case-sensitive exact matches; unknown names are dropped, not errors.
func resolveConnectionTypes(ctx context.Context, q interfaces.Querier, connectionTypes []string) ([]uuid.UUID, map[string]bool, error) {
	rows, err := q.Query(ctx, "SELECT type_id, type_name FROM kith_schema.connection_types WHERE type_name = ANY($1)", connectionTypes)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	typeIds := make([]uuid.UUID, 0, len(connectionTypes))
	typeNames := make(map[string]bool, len(connectionTypes))
	for rows.Next() {
		var typeId uuid.UUID
		var typeName string
		if err := rows.Scan(&typeId, &typeName); err != nil {
			return nil, nil, err
		}
		typeIds = append(typeIds, typeId)
		typeNames[typeName] = true
	}

	return typeIds, typeNames, rows.Err()
}

func loadEdge(ctx context.Context, q interfaces.Querier, fromUserId, toUserId string) (uuid.UUID, map[string]bool, error) {
	queryString := "SELECT connection_id FROM kith_schema.connections WHERE requester_id = $1 AND recipient_id = $2"
	var edgeId uuid.UUID
	if err := q.QueryRow(ctx, queryString, fromUserId, toUserId).Scan(&edgeId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, nil, ErrEdgeNotFound
		}
		return uuid.UUID{}, nil, err
	}

	rows, err := q.Query(ctx, "SELECT ct.type_name FROM kith_schema.connection_type_links l JOIN kith_schema.connection_types ct ON ct.type_id = l.type_id WHERE l.connection_id = $1", edgeId)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	defer rows.Close()

	typeNames := make(map[string]bool)
	for rows.Next() {
		var typeName string
		if err := rows.Scan(&typeName); err != nil {
			return uuid.UUID{}, nil, err
		}
		typeNames[typeName] = true
	}

	return edgeId, typeNames, rows.Err()
}

func replaceEdgeTypes(ctx context.Context, q interfaces.Querier, edgeId uuid.UUID, typeIds []uuid.UUID) error {
	if _, err := q.Exec(ctx, "DELETE FROM kith_schema.connection_type_links WHERE connection_id = $1", edgeId); err != nil {
		return err
	}

	for _, typeId := range typeIds {
		if _, err := q.Exec(ctx, "INSERT INTO kith_schema.connection_type_links (connection_id, type_id) VALUES ($1, $2)", edgeId, typeId); err != nil {
			return err
		}
	}

	return nil
}

// recomputeMutuality stores the derived flag on both directions of the pair.
// The recompute is idempotent, so concurrent upserts converge.
func recomputeMutuality(ctx context.Context, q interfaces.Querier, a, b string) error {
	queryString := "SELECT connection_id FROM kith_schema.connections WHERE requester_id = $1 AND recipient_id = $2"
	var reverseId pgtype.UUID
	err := q.QueryRow(ctx, queryString, b, a).Scan(&reverseId)
	mutual := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	queryString = "UPDATE kith_schema.connections SET is_mutual = $3 WHERE requester_id = $1 AND recipient_id = $2"
	if _, err := q.Exec(ctx, queryString, a, b, mutual); err != nil {
		return err
	}

	if mutual {
		if _, err := q.Exec(ctx, queryString, b, a, true); err != nil {
			return err
		}
	}

	return nil
}

func sameTypeSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if !b[name] {
			return false
		}
	}
	return true
}
