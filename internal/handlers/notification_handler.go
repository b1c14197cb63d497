package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kithnet/server-core/internal/interfaces"
	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

const (
	notificationConnectionRequest = "connection_request"
	notificationComment           = "comment"
)

// NotificationHdl groups the notification handlers.
type NotificationHdl interface {
	ListNotifications(ctx *gin.Context)
	MarkNotificationRead(ctx *gin.Context)
}

type NotificationHandler struct {
	databaseManager managers.DatabaseMgr
}

// NewNotificationHandler creates and initializes a new NotificationHandler.
func NewNotificationHandler(databaseManager managers.DatabaseMgr) NotificationHdl {
	return &NotificationHandler{databaseManager: databaseManager}
}

// ListNotifications returns the caller's notifications, newest first.
func (handler *NotificationHandler) ListNotifications(ctx *gin.Context) {
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

	offset, limit := utils.ParsePaginationParams(ctx)

	var totalRecords int
	queryString := "SELECT COUNT(*) FROM kith_schema.notifications WHERE user_id = $1"
	if err = tx.QueryRow(ctx, queryString, claims.UserID).Scan(&totalRecords); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString = "SELECT n.notification_id, n.notification_type, COALESCE(u.profile_name, ''), n.post_id, n.is_read, n.created_at " +
		"FROM kith_schema.notifications n " +
		"LEFT JOIN kith_schema.users u ON u.user_id = n.actor_id " +
		"WHERE n.user_id = $1 ORDER BY n.created_at DESC OFFSET $2 LIMIT $3"
	rows, err := tx.Query(ctx, queryString, claims.UserID, offset, limit)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	records := make([]schemas.NotificationDTO, 0)
	for rows.Next() {
		record := schemas.NotificationDTO{}
		var postId pgtype.UUID
		var createdAt time.Time
		if err = rows.Scan(&record.NotificationID, &record.NotificationType, &record.ActorProfileName, &postId, &record.IsRead, &createdAt); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
		if postId.Valid {
			id := uuid.UUID(postId.Bytes)
			record.PostID = &id
		}
		record.CreationDate = createdAt.Format(time.RFC3339)
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.SendPaginatedResponse(ctx, records, offset, limit, totalRecords)
}

// MarkNotificationRead flags one of the caller's notifications as read. Another
// user's notification is reported as not found, not as forbidden.
func (handler *NotificationHandler) MarkNotificationRead(ctx *gin.Context) {
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

	notificationId, err := uuid.Parse(ctx.Param(utils.NotificationIdKey))
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	queryString := "UPDATE kith_schema.notifications SET is_read = TRUE WHERE notification_id = $1 AND user_id = $2"
	tag, err := tx.Exec(ctx, queryString, notificationId, claims.UserID)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	if tag.RowsAffected() == 0 {
		utils.WriteAndLogError(ctx, schemas.NotificationNotFound, http.StatusNotFound, errors.New("notification not found"))
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.Response{Success: true}, http.StatusOK)
}

// createNotification inserts a notification row inside the caller's
// transaction, so user-visible side effects commit atomically with their cause.
func createNotification(ctx *gin.Context, q interfaces.Querier, recipientId, notificationType, actorId string, postId *uuid.UUID) error {
	queryString := "INSERT INTO kith_schema.notifications (notification_id, user_id, notification_type, actor_id, post_id, is_read, created_at) " +
		"VALUES ($1, $2, $3, $4, $5, FALSE, $6)"
	_, err := q.Exec(ctx, queryString, uuid.New(), recipientId, notificationType, actorId, postId, time.Now())
	return err
}

// PurgeReadNotifications removes read notifications older than the retention
// window. Called from the periodic housekeeping task.
func PurgeReadNotifications(ctx context.Context, q interfaces.Querier, retention time.Duration) error {
	queryString := "DELETE FROM kith_schema.notifications WHERE is_read AND created_at < $1"
	_, err := q.Exec(ctx, queryString, time.Now().Add(-retention))
	return err
}
