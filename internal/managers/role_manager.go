package managers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kithnet/server-core/internal/interfaces"
)

// AdministratorRole gates the privileged operations: deleting any post and
// verifying display names.
const AdministratorRole = "Administrator"

// ErrRoleNotFound is returned when the role name is not in the catalog.
var ErrRoleNotFound = errors.New("role not found")

// RoleMgr answers role membership questions. Checks are per-request; the
// broader deployment caches aggressively in front of this, which is a
// performance concern and not a correctness one.
type RoleMgr interface {
	HasRole(ctx context.Context, q interfaces.Querier, userId, roleName string) (bool, error)
	GrantRole(ctx context.Context, q interfaces.Querier, userId, roleName string) error
}

// RoleManager implements RoleMgr on the role catalog tables.
type RoleManager struct{}

// NewRoleManager returns the role gate.
func NewRoleManager() RoleMgr {
	return &RoleManager{}
}

// HasRole reports whether the user is a member of the named role.
func (rm *RoleManager) HasRole(ctx context.Context, q interfaces.Querier, userId, roleName string) (bool, error) {
	queryString := "SELECT EXISTS (SELECT 1 FROM kith_schema.user_roles ur " +
		"JOIN kith_schema.roles r ON r.role_id = ur.role_id " +
		"WHERE ur.user_id = $1 AND r.role_name = $2)"

	var isMember bool
	if err := q.QueryRow(ctx, queryString, userId, roleName).Scan(&isMember); err != nil {
		return false, err
	}

	return isMember, nil
}

// GrantRole adds the user to the named role. Granting twice is a no-op.
func (rm *RoleManager) GrantRole(ctx context.Context, q interfaces.Querier, userId, roleName string) error {
	queryString := "SELECT role_id FROM kith_schema.roles WHERE role_name = $1"
	var roleId uuid.UUID
	if err := q.QueryRow(ctx, queryString, roleName).Scan(&roleId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoleNotFound
		}
		return err
	}

	queryString = "INSERT INTO kith_schema.user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING"
	_, err := q.Exec(ctx, queryString, userId, roleId)
	return err
}
