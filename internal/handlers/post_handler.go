package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// PostHdl groups the post and comment handlers.
type PostHdl interface {
	CreatePost(ctx *gin.Context)
	DeletePost(ctx *gin.Context)
	GetFeed(ctx *gin.Context)
	GetUserPosts(ctx *gin.Context)
	CreateComment(ctx *gin.Context)
	GetComments(ctx *gin.Context)
}

type PostHandler struct {
	databaseManager managers.DatabaseMgr
	roleManager     managers.RoleMgr
}

// NewPostHandler creates and initializes a new PostHandler.
func NewPostHandler(databaseManager managers.DatabaseMgr, roleManager managers.RoleMgr) PostHdl {
	return &PostHandler{
		databaseManager: databaseManager,
		roleManager:     roleManager,
	}
}

const postSelect = "SELECT p.post_id, p.content, p.created_at, u.profile_name, COALESCE(d.display_name, ''), u.profile_picture_url, " +
	"(SELECT COUNT(*) FROM kith_schema.comments c WHERE c.post_id = p.post_id) " +
	"FROM kith_schema.posts p " +
	"JOIN kith_schema.users u ON u.user_id = p.author_id " +
	"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active"

// feedVisibility filters posts for an authenticated caller: public authors,
// the caller's own posts and posts by mutual connections.
const feedVisibility = "(u.public_access OR p.author_id = $1 OR EXISTS " +
	"(SELECT 1 FROM kith_schema.connections c WHERE c.requester_id = $1 AND c.recipient_id = p.author_id AND c.is_mutual))"

// CreatePost publishes a new post by the caller.
func (handler *PostHandler) CreatePost(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	request := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.CreatePostRequest)
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	postId := uuid.New()
	createdAt := time.Now()

	queryString := "INSERT INTO kith_schema.posts (post_id, author_id, content, created_at) VALUES ($1, $2, $3, $4)"
	if _, err = tx.Exec(ctx, queryString, postId, claims.UserID, request.Content, createdAt); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	author := schemas.AuthorDTO{}
	queryString = "SELECT u.profile_name, COALESCE(d.display_name, ''), u.profile_picture_url FROM kith_schema.users u " +
		"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active WHERE u.user_id = $1"
	if err = tx.QueryRow(ctx, queryString, claims.UserID).Scan(&author.ProfileName, &author.DisplayName, &author.ProfilePictureURL); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.PostDTO{
		PostID:       postId.String(),
		Author:       author,
		Content:      request.Content,
		CreationDate: createdAt.Format(time.RFC3339),
	}, http.StatusCreated)
}

// DeletePost removes a post. Only the author may delete their post, with the
// Administrator role as the override.
func (handler *PostHandler) DeletePost(ctx *gin.Context) {
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

	postId, err := uuid.Parse(ctx.Param(utils.PostIdKey))
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	var authorId uuid.UUID
	queryString := "SELECT author_id FROM kith_schema.posts WHERE post_id = $1"
	if err = tx.QueryRow(ctx, queryString, postId).Scan(&authorId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.PostNotFound, http.StatusNotFound, errors.New("post not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if authorId.String() != claims.UserID {
		isAdministrator, roleErr := handler.roleManager.HasRole(ctx, tx, claims.UserID, managers.AdministratorRole)
		if roleErr != nil {
			err = roleErr
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
		if !isAdministrator {
			utils.WriteAndLogError(ctx, schemas.Forbidden, http.StatusForbidden, errors.New("not the author"))
			return
		}
	}

	queryString = "DELETE FROM kith_schema.posts WHERE post_id = $1"
	if _, err = tx.Exec(ctx, queryString, postId); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.Response{Success: true, Message: "The post has been deleted."}, http.StatusOK)
}

// GetFeed returns the global feed, newest first. Anonymous callers see posts by
// public authors only; authenticated callers additionally see their own posts
// and posts by mutual connections.
func (handler *PostHandler) GetFeed(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	offset, limit := utils.ParsePaginationParams(ctx)

	countQuery := "SELECT COUNT(*) FROM kith_schema.posts p JOIN kith_schema.users u ON u.user_id = p.author_id WHERE u.public_access"
	pageQuery := postSelect + " WHERE u.public_access ORDER BY p.created_at DESC OFFSET $1 LIMIT $2"
	args := []any{offset, limit}
	countArgs := []any{}

	if claims, ok := middleware.GetClaims(ctx); ok {
		countQuery = "SELECT COUNT(*) FROM kith_schema.posts p JOIN kith_schema.users u ON u.user_id = p.author_id WHERE " + feedVisibility
		pageQuery = postSelect + " WHERE " + feedVisibility + " ORDER BY p.created_at DESC OFFSET $2 LIMIT $3"
		args = []any{claims.UserID, offset, limit}
		countArgs = []any{claims.UserID}
	}

	var totalRecords int
	if err = tx.QueryRow(ctx, countQuery, countArgs...).Scan(&totalRecords); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	records, err := queryPosts(ctx, tx, pageQuery, args...)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.SendPaginatedResponse(ctx, records, offset, limit, totalRecords)
}

// GetUserPosts lists the posts of the user in the path, newest first, under the
// same visibility rule as the profile itself.
func (handler *PostHandler) GetUserPosts(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	user, err := resolveUser(ctx, tx, ctx.Param(utils.ProfileNameKey))
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
	queryString := "SELECT COUNT(*) FROM kith_schema.posts WHERE author_id = $1"
	if err = tx.QueryRow(ctx, queryString, user.UserID).Scan(&totalRecords); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString = postSelect + " WHERE p.author_id = $1 ORDER BY p.created_at DESC OFFSET $2 LIMIT $3"
	records, err := queryPosts(ctx, tx, queryString, user.UserID, offset, limit)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.SendPaginatedResponse(ctx, records, offset, limit, totalRecords)
}

// CreateComment adds a comment to the post in the path and notifies the post's
// author, unless the author is commenting on their own post.
func (handler *PostHandler) CreateComment(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	request := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.CreateCommentRequest)
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	postId, err := uuid.Parse(ctx.Param(utils.PostIdKey))
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	var authorId uuid.UUID
	queryString := "SELECT author_id FROM kith_schema.posts WHERE post_id = $1"
	if err = tx.QueryRow(ctx, queryString, postId).Scan(&authorId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			utils.WriteAndLogError(ctx, schemas.PostNotFound, http.StatusNotFound, errors.New("post not found"))
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	commentId := uuid.New()
	createdAt := time.Now()

	queryString = "INSERT INTO kith_schema.comments (comment_id, post_id, author_id, content, created_at) VALUES ($1, $2, $3, $4, $5)"
	if _, err = tx.Exec(ctx, queryString, commentId, postId, claims.UserID, request.Content, createdAt); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if authorId.String() != claims.UserID {
		if err = createNotification(ctx, tx, authorId.String(), notificationComment, claims.UserID, &postId); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
		}
	}

	author := schemas.AuthorDTO{}
	queryString = "SELECT u.profile_name, COALESCE(d.display_name, ''), u.profile_picture_url FROM kith_schema.users u " +
		"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active WHERE u.user_id = $1"
	if err = tx.QueryRow(ctx, queryString, claims.UserID).Scan(&author.ProfileName, &author.DisplayName, &author.ProfilePictureURL); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	utils.WriteAndLogResponse(ctx, &schemas.CommentDTO{
		CommentID:    commentId.String(),
		Author:       author,
		Content:      request.Content,
		CreationDate: createdAt.Format(time.RFC3339),
	}, http.StatusCreated)
}

// GetComments lists a post's comments, oldest first.
func (handler *PostHandler) GetComments(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	postId, err := uuid.Parse(ctx.Param(utils.PostIdKey))
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	var postExists bool
	queryString := "SELECT EXISTS (SELECT 1 FROM kith_schema.posts WHERE post_id = $1)"
	if err = tx.QueryRow(ctx, queryString, postId).Scan(&postExists); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	if !postExists {
		utils.WriteAndLogError(ctx, schemas.PostNotFound, http.StatusNotFound, errors.New("post not found"))
		return
	}

	offset, limit := utils.ParsePaginationParams(ctx)

	var totalRecords int
	queryString = "SELECT COUNT(*) FROM kith_schema.comments WHERE post_id = $1"
	if err = tx.QueryRow(ctx, queryString, postId).Scan(&totalRecords); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	queryString = "SELECT c.comment_id, c.content, c.created_at, u.profile_name, COALESCE(d.display_name, ''), u.profile_picture_url " +
		"FROM kith_schema.comments c " +
		"JOIN kith_schema.users u ON u.user_id = c.author_id " +
		"LEFT JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active " +
		"WHERE c.post_id = $1 ORDER BY c.created_at ASC OFFSET $2 LIMIT $3"
	rows, err := tx.Query(ctx, queryString, postId, offset, limit)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	records := make([]schemas.CommentDTO, 0)
	for rows.Next() {
		record := schemas.CommentDTO{}
		var createdAt time.Time
		if err = rows.Scan(&record.CommentID, &record.Content, &createdAt, &record.Author.ProfileName, &record.Author.DisplayName, &record.Author.ProfilePictureURL); err != nil {
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
			return
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

func queryPosts(ctx *gin.Context, tx pgx.Tx, queryString string, args ...any) ([]schemas.PostDTO, error) {
	rows, err := tx.Query(ctx, queryString, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]schemas.PostDTO, 0)
	for rows.Next() {
		record := schemas.PostDTO{}
		var createdAt time.Time
		if err := rows.Scan(&record.PostID, &record.Content, &createdAt, &record.Author.ProfileName, &record.Author.DisplayName, &record.Author.ProfilePictureURL, &record.Comments); err != nil {
			return nil, err
		}
		record.CreationDate = createdAt.Format(time.RFC3339)
		records = append(records, record)
	}

	return records, rows.Err()
}
