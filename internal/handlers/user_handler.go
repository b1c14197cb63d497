package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kithnet/server-core/internal/interfaces"
	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// UserHdl groups the profile handlers.
type UserHdl interface {
	GetProfile(ctx *gin.Context)
	SetDisplayName(ctx *gin.Context)
	VerifyDisplayName(ctx *gin.Context)
	ListDisplayNames(ctx *gin.Context)
	UploadProfilePicture(ctx *gin.Context)
}

type UserHandler struct {
	databaseManager       managers.DatabaseMgr
	moderationManager     managers.ModerationMgr
	displayNameCooldown   time.Duration
	profilePictureBaseURL string
}

// NewUserHandler creates and initializes a new UserHandler.
func NewUserHandler(databaseManager managers.DatabaseMgr, moderationManager managers.ModerationMgr, displayNameCooldown time.Duration, profilePictureBaseURL string) UserHdl {
	return &UserHandler{
		databaseManager:       databaseManager,
		moderationManager:     moderationManager,
		displayNameCooldown:   displayNameCooldown,
		profilePictureBaseURL: profilePictureBaseURL,
	}
}

// maxPictureBytes caps profile picture uploads at 5 MiB.
const maxPictureBytes = 5 << 20

// GetProfile returns the profile behind the path's profile name. Profiles
// without public access are hidden from anonymous callers; authenticated
// callers additionally get the connection state relative to themselves.
func (handler *UserHandler) GetProfile(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	profileName := ctx.Param(utils.ProfileNameKey)
	user, err := resolveUser(ctx, tx, profileName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	claims, authenticated := middleware.GetClaims(ctx)
	if !authenticated && !user.PublicAccess {
		utils.WriteAndLogError(ctx, schemas.Forbidden, http.StatusForbidden, errors.New("profile not public"))
		return
	}

	profile := &schemas.UserProfileDTO{
		ProfileName:    user.ProfileName,
		ProfilePicture: user.ProfilePictureURL,
	}

	queryString := "SELECT display_name, name_index, is_verified FROM kith_schema.display_names WHERE user_id = $1 AND is_active"
	if err = tx.QueryRow(ctx, queryString, user.UserID).Scan(&profile.DisplayName, &profile.DisplayNameIndex, &profile.DisplayNameVerified); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString = "SELECT " +
		"(SELECT COUNT(*) FROM kith_schema.posts WHERE author_id = $1), " +
		"(SELECT COUNT(*) FROM kith_schema.connections WHERE requester_id = $1)"
	if err = tx.QueryRow(ctx, queryString, user.UserID).Scan(&profile.Posts, &profile.Connections); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if authenticated && claims.UserID != user.UserID.String() {
		profile.ConnectionState, err = connectionState(ctx, tx, claims.UserID, user.UserID.String())
		if err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, profile, http.StatusOK)
}

// SetDisplayName retires the caller's active display name and activates the
// requested one under a fresh per-name index. Changes are rate-limited by the
// cooldown; the profile name is immutable and not touched here.
func (handler *UserHandler) SetDisplayName(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	request := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.SetDisplayNameRequest)
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	var currentName string
	var activatedAt time.Time
	queryString := "SELECT display_name, activated_at FROM kith_schema.display_names WHERE user_id = $1 AND is_active"
	if err = tx.QueryRow(ctx, queryString, claims.UserID).Scan(&currentName, &activatedAt); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if currentName == request.DisplayName {
		utils.WriteValidationFailure(ctx, "This is already your display name.")
		return
	}

	if nextChange := activatedAt.Add(handler.displayNameCooldown); time.Now().Before(nextChange) {
		utils.WriteValidationFailure(ctx, "You can change your display name again on "+nextChange.Format("2006-01-02")+".")
		return
	}

	queryString = "UPDATE kith_schema.display_names SET is_active = FALSE WHERE user_id = $1 AND is_active"
	if _, err = tx.Exec(ctx, queryString, claims.UserID); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	nameIndex, err := activateDisplayName(ctx, tx, claims.UserID, request.DisplayName, time.Now())
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.SetDisplayNameResponseDTO{
		Success:          true,
		DisplayNameIndex: nameIndex,
	}, http.StatusOK)
}

// VerifyDisplayName stamps the active display name of the user behind the path
// as verified. The route guards this behind the Administrator role; a later
// name change starts unverified again.
func (handler *UserHandler) VerifyDisplayName(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	profileName := ctx.Param(utils.ProfileNameKey)
	user, err := resolveUser(ctx, tx, profileName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString := "UPDATE kith_schema.display_names SET is_verified = TRUE WHERE user_id = $1 AND is_active"
	tag, err := tx.Exec(ctx, queryString, user.UserID)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	if tag.RowsAffected() == 0 {
		utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("no active display name"))
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.Response{
		Success: true,
		Message: "The display name has been verified.",
	}, http.StatusOK)
}

// ListDisplayNames returns the display-name history of the user behind the
// path, newest first.
func (handler *UserHandler) ListDisplayNames(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	profileName := ctx.Param(utils.ProfileNameKey)
	user, err := resolveUser(ctx, tx, profileName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.UserNotFound, http.StatusNotFound, errors.New("user not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if _, authenticated := middleware.GetClaims(ctx); !authenticated && !user.PublicAccess {
		utils.WriteAndLogError(ctx, schemas.Forbidden, http.StatusForbidden, errors.New("profile not public"))
		return
	}

	offset, limit := utils.ParsePaginationParams(ctx)

	var totalRecords int
	queryString := "SELECT COUNT(*) FROM kith_schema.display_names WHERE user_id = $1"
	if err = tx.QueryRow(ctx, queryString, user.UserID).Scan(&totalRecords); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString = "SELECT display_name, name_index, activated_at, is_active, is_verified FROM kith_schema.display_names " +
		"WHERE user_id = $1 ORDER BY activated_at DESC OFFSET $2 LIMIT $3"
	rows, err := tx.Query(ctx, queryString, user.UserID, offset, limit)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	records := make([]schemas.DisplayNameDTO, 0)
	for rows.Next() {
		record := schemas.DisplayNameDTO{}
		var activatedAt time.Time
		if err = rows.Scan(&record.DisplayName, &record.NameIndex, &activatedAt, &record.IsActive, &record.IsVerified); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
		record.ActivatedDate = activatedAt.Format(time.RFC3339)
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

// UploadProfilePicture accepts a multipart image, runs it past content
// moderation and stores the resulting picture URL. A moderation outage fails
// the upload, never waves it through.
func (handler *UserHandler) UploadProfilePicture(ctx *gin.Context) {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	image, contentType, err := readPictureUpload(ctx)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.PictureInvalid, http.StatusBadRequest, err)
		return
	}

	verdict, err := handler.moderationManager.CheckProfilePicture(ctx, image, contentType)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}
	if !verdict.Approved {
		utils.WriteAndLogError(ctx, schemas.PictureRejected, http.StatusBadRequest, errors.New("moderation verdict: "+verdict.Label))
		return
	}

	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	pictureURL := path.Join(handler.profilePictureBaseURL, claims.UserID+pictureExtension(contentType))
	queryString := "UPDATE kith_schema.users SET profile_picture_url = $1 WHERE user_id = $2"
	if _, err = tx.Exec(ctx, queryString, pictureURL, claims.UserID); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.ProfilePictureDTO{
		Success:           true,
		ProfilePictureURL: pictureURL,
	}, http.StatusOK)
}

// readPictureUpload pulls the multipart file and sniffs its content type.
// Only JPEG, PNG and WebP pass.
func readPictureUpload(ctx *gin.Context) ([]byte, string, error) {
	fileHeader, err := ctx.FormFile("picture")
	if err != nil {
		return nil, "", err
	}
	if fileHeader.Size > maxPictureBytes {
		return nil, "", errors.New("picture exceeds size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	image := make([]byte, fileHeader.Size)
	if _, err := io.ReadFull(file, image); err != nil {
		return nil, "", err
	}

	contentType := http.DetectContentType(image)
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
		return image, contentType, nil
	default:
		return nil, "", errors.New("unsupported content type " + contentType)
	}
}

func pictureExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// resolvedUser is the slice of the user row the read paths need.
type resolvedUser struct {
	UserID            *uuid.UUID
	ProfileName       string
	PublicAccess      bool
	ProfilePictureURL string
}

// resolveUser maps a profile name onto the user row. Callers translate
// pgx.ErrNoRows into the user-facing not-found error.
func resolveUser(ctx *gin.Context, q interfaces.Querier, profileName string) (*resolvedUser, error) {
	user := &resolvedUser{ProfileName: profileName}
	var userId uuid.UUID
	queryString := "SELECT user_id, public_access, profile_picture_url FROM kith_schema.users WHERE profile_name = $1"
	if err := q.QueryRow(ctx, queryString, profileName).Scan(&userId, &user.PublicAccess, &user.ProfilePictureURL); err != nil {
		return nil, err
	}

	user.UserID = &userId
	return user, nil
}

// connectionState classifies the pair of directed edges between the caller and
// the viewed user as "none", "outgoing", "incoming" or "mutual".
func connectionState(ctx *gin.Context, q interfaces.Querier, callerId, targetId string) (string, error) {
	var outgoing, incoming bool
	queryString := "SELECT " +
		"EXISTS (SELECT 1 FROM kith_schema.connections WHERE requester_id = $1 AND recipient_id = $2), " +
		"EXISTS (SELECT 1 FROM kith_schema.connections WHERE requester_id = $2 AND recipient_id = $1)"
	if err := q.QueryRow(ctx, queryString, callerId, targetId).Scan(&outgoing, &incoming); err != nil {
		return "", err
	}

	switch {
	case outgoing && incoming:
		return "mutual", nil
	case outgoing:
		return "outgoing", nil
	case incoming:
		return "incoming", nil
	default:
		return "none", nil
	}
}
