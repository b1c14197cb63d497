package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/kithnet/server-core/internal/interfaces"
	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// ConnectionHdl groups the connection graph handlers.
type ConnectionHdl interface {
	UpsertConnection(ctx *gin.Context)
	RemoveConnection(ctx *gin.Context)
	ListOutgoing(ctx *gin.Context)
	ListIncoming(ctx *gin.Context)
	ListConnectionTypes(ctx *gin.Context)
}

type ConnectionHandler struct {
	databaseManager   managers.DatabaseMgr
	connectionManager managers.ConnectionMgr
}

// NewConnectionHandler creates and initializes a new ConnectionHandler.
func NewConnectionHandler(databaseManager managers.DatabaseMgr, connectionManager managers.ConnectionMgr) ConnectionHdl {
	return &ConnectionHandler{
		databaseManager:   databaseManager,
		connectionManager: connectionManager,
	}
}

// UpsertConnection creates or retypes the caller's directed edge to the user
// named in the body. A freshly created edge notifies the recipient; replaying
// the same type set is a no-op reported as such.
func (handler *ConnectionHandler) UpsertConnection(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	request := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.ConnectionUpdateRequest)
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	target, err := resolveUser(ctx, tx, request.ProfileName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	action, err := handler.connectionManager.UpsertOutgoingEdge(ctx, tx, claims.UserID, target.UserID.String(), request.ConnectionTypes)
	if err != nil {
		switch {
		case errors.Is(err, managers.ErrSelfConnection):
			err = nil
			utils.WriteValidationFailure(ctx, "You cannot connect to yourself.")
		case errors.Is(err, managers.ErrNoConnectionTypes):
			err = nil
			utils.WriteValidationFailure(ctx, "None of the requested connection types exist.")
		default:
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		}
		return
	}

	edge, err := handler.connectionManager.GetEdge(ctx, tx, claims.UserID, target.UserID.String())
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if action == managers.ActionAdded {
		if err = createNotification(ctx, tx, target.UserID.String(), notificationConnectionRequest, claims.UserID, nil); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.ConnectionUpdateResponseDTO{
		Success:        true,
		ActionTaken:    string(action),
		UserConnection: edge,
	}, http.StatusOK)
}

// RemoveConnection deletes the caller's directed edge to the user in the path.
// The reverse edge, if any, survives and re-surfaces as incoming on this side.
func (handler *ConnectionHandler) RemoveConnection(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	target, err := resolveUser(ctx, tx, ctx.Param(utils.ProfileNameKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if _, err = handler.connectionManager.RemoveOutgoingEdge(ctx, tx, claims.UserID, target.UserID.String()); err != nil {
		if errors.Is(err, managers.ErrEdgeNotFound) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.ConnectionNotFound, http.StatusNotFound, errors.New("edge not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.ConnectionUpdateResponseDTO{
		Success:     true,
		ActionTaken: "removed",
	}, http.StatusOK)
}

// ListOutgoing returns every connection the caller has declared.
func (handler *ConnectionHandler) ListOutgoing(ctx *gin.Context) {
	handler.listEdges(ctx, handler.connectionManager.ListOutgoing)
}

// ListIncoming returns connections declared towards the caller that the caller
// has not reciprocated.
func (handler *ConnectionHandler) ListIncoming(ctx *gin.Context) {
	handler.listEdges(ctx, handler.connectionManager.ListIncoming)
}

func (handler *ConnectionHandler) listEdges(ctx *gin.Context, list func(ctx context.Context, q interfaces.Querier, userId string) ([]schemas.UserConnectionDTO, error)) {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	edges, err := list(ctx, handler.databaseManager.GetPool(), claims.UserID)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	utils.WriteAndLogResponse(ctx, edges, http.StatusOK)
}

// ListConnectionTypes returns the global relationship-type catalog.
func (handler *ConnectionHandler) ListConnectionTypes(ctx *gin.Context) {
	types, err := handler.connectionManager.ListTypes(ctx, handler.databaseManager.GetPool())
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	utils.WriteAndLogResponse(ctx, types, http.StatusOK)
}
