// Package handlers implements the HTTP handlers of the server. Every handler
// runs inside one database transaction begun on the request context; managers
// join that transaction so a response is only sent once its effects are
// durable.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kithnet/server-core/internal/managers"
	"github.com/kithnet/server-core/internal/middleware"
	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// AuthHdl groups the account lifecycle handlers: registration, login, logout
// and the password reset flow.
type AuthHdl interface {
	Register(ctx *gin.Context)
	Login(ctx *gin.Context)
	Logout(ctx *gin.Context)
	RequestPasswordReset(ctx *gin.Context)
	ResetPassword(ctx *gin.Context)
}

type AuthHandler struct {
	databaseManager managers.DatabaseMgr
	sessionManager  managers.SessionMgr
	resetManager    managers.ResetMgr
	mailManager     managers.MailMgr
	validator       *utils.Validator
	production      bool
}

// NewAuthHandler creates and initializes a new AuthHandler with the managers it
// depends on.
func NewAuthHandler(databaseManager managers.DatabaseMgr, sessionManager managers.SessionMgr, resetManager managers.ResetMgr, mailManager managers.MailMgr, production bool) AuthHdl {
	return &AuthHandler{
		databaseManager: databaseManager,
		sessionManager:  sessionManager,
		resetManager:    resetManager,
		mailManager:     mailManager,
		validator:       utils.GetValidator(),
		production:      production,
	}
}

const startPage = "/feed"

// Register creates a new account together with its first display name entry
// and greets the user with a welcome mail.
func (handler *AuthHandler) Register(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	registrationRequest := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.RegistrationRequest)

	// Deliverability is only checked in production, the MX lookup needs
	// outbound network access.
	if handler.production && !handler.validator.VerifyEmail(registrationRequest.Email) {
		utils.WriteValidationFailure(ctx, "The email address appears to be unreachable. Please check it and try again.")
		return
	}

	taken, takenMessage, err := checkEmailProfileNameTaken(ctx, tx, registrationRequest.Email, registrationRequest.ProfileName)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}
	if taken {
		utils.WriteValidationFailure(ctx, takenMessage)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(registrationRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.InternalServerError, http.StatusInternalServerError, err)
		return
	}

	userId := uuid.New()
	createdAt := time.Now()

	queryString := "INSERT INTO kith_schema.users (user_id, email, password, profile_name, public_access, profile_picture_url, created_at) VALUES ($1, $2, $3, $4, FALSE, '', $5)"
	if _, err = tx.Exec(ctx, queryString, userId, registrationRequest.Email, hashedPassword, registrationRequest.ProfileName, createdAt); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if _, err = activateDisplayName(ctx, tx, userId.String(), registrationRequest.DisplayName, createdAt); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	// Fire-and-forget, a failed welcome mail never fails the registration.
	go func() {
		_ = handler.mailManager.SendWelcomeMail(registrationRequest.Email, registrationRequest.DisplayName)
	}()

	utils.WriteAndLogResponse(ctx, &schemas.Response{Success: true, Message: "Your account has been created."}, http.StatusCreated)
}

// Login verifies the credentials and secures a session. A caller that still
// holds a live session for the same account gets that session extended instead
// of a fresh one; in every case the response only claims success after the
// ledger write committed.
func (handler *AuthHandler) Login(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	loginRequest := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.LoginRequest)

	var userId uuid.UUID
	var hashedPassword string
	queryString := "SELECT user_id, password FROM kith_schema.users WHERE email = $1"
	if err = tx.QueryRow(ctx, queryString, loginRequest.Email).Scan(&userId, &hashedPassword); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			ctx.JSON(http.StatusOK, &schemas.LoginResponseDTO{Success: false, Message: schemas.InvalidCredentials.Message})
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(loginRequest.Password)) != nil {
		ctx.JSON(http.StatusOK, &schemas.LoginResponseDTO{Success: false, Message: schemas.InvalidCredentials.Message})
		return
	}

	loginDetails, err := loadLoginDetails(ctx, tx, userId)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	tokenString, err := handler.secureSession(ctx, tx, userId.String())
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.SessionNotSecured, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	handler.setSessionCookie(ctx, tokenString, int(handler.sessionManager.SessionDuration().Seconds()))
	utils.WriteAndLogResponse(ctx, &schemas.LoginResponseDTO{
		Success:      true,
		StartPage:    startPage,
		LoginDetails: loginDetails,
	}, http.StatusOK)
}

// secureSession extends the caller's still-live session when it belongs to the
// authenticated account and issues a fresh token otherwise.
func (handler *AuthHandler) secureSession(ctx *gin.Context, tx pgx.Tx, userId string) (string, error) {
	if claims, ok := middleware.GetClaims(ctx); ok && claims.UserID == userId {
		expiresAt := time.Now().Add(handler.sessionManager.SessionDuration())
		err := handler.sessionManager.ExtendToken(ctx, tx, userId, claims.JTI, expiresAt)
		if err == nil {
			return middleware.ExtractToken(ctx), nil
		}
		if !errors.Is(err, managers.ErrSessionNotFound) {
			return "", err
		}
		// Revoked between validation and extension, fall through to a new one.
	}

	tokenString, _, err := handler.sessionManager.IssueToken(ctx, tx, userId)
	return tokenString, err
}

// Logout revokes sessions according to the request flags and clears the cookie
// whenever the current session is among the revoked ones.
func (handler *AuthHandler) Logout(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	logoutRequest := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.LogoutRequest)
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		utils.WriteAndLogError(ctx, schemas.Unauthorized, http.StatusUnauthorized, errors.New("no session"))
		return
	}

	mode := managers.InvalidateSpecific
	switch {
	case logoutRequest.FromHere && logoutRequest.FromOtherLocations:
		mode = managers.InvalidateAll
	case logoutRequest.FromOtherLocations:
		mode = managers.InvalidateOthers
	}

	if err = handler.sessionManager.Invalidate(ctx, tx, claims.UserID, mode, claims.JTI); err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	if mode != managers.InvalidateOthers {
		handler.setSessionCookie(ctx, "", -1)
	}

	utils.WriteAndLogResponse(ctx, &schemas.Response{Success: true, Message: "You have been logged out."}, http.StatusOK)
}

// RequestPasswordReset issues a reset token and mails it to the account. The
// response shape is identical whether or not the email is registered, so the
// endpoint cannot be used to enumerate accounts.
func (handler *AuthHandler) RequestPasswordReset(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	resetRequest := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.ResetPasswordRequestRequest)

	successResponse := &schemas.Response{Success: true, Message: "If the email is registered, a reset code is on its way."}

	token, err := handler.resetManager.Generate(ctx, tx, resetRequest.Email)
	if err != nil {
		switch {
		case errors.Is(err, managers.ErrResetUserNotFound):
			err = nil
			utils.WriteAndLogResponse(ctx, successResponse, http.StatusOK)
		case errors.Is(err, managers.ErrTooManyResetTokens):
			err = nil
			utils.WriteValidationFailure(ctx, "Too many active reset codes. Please wait for one to expire.")
		default:
			utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		}
		return
	}

	displayName, err := activeDisplayName(ctx, tx, resetRequest.Email)
	if err != nil {
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	go func() {
		_ = handler.mailManager.SendPasswordResetMail(resetRequest.Email, displayName, token)
	}()

	utils.WriteAndLogResponse(ctx, successResponse, http.StatusOK)
}

// ResetPassword redeems a reset token: the password is rotated and every
// session of the account is revoked in the same transaction.
func (handler *AuthHandler) ResetPassword(ctx *gin.Context) {
	tx := utils.BeginTransaction(ctx, handler.databaseManager.GetPool())
	if tx == nil {
		return
	}
	var err error
	defer func() { utils.RollbackTransaction(ctx, tx, err) }()

	resetRequest := ctx.MustGet(utils.SanitizedPayloadKey.String()).(*schemas.ResetPasswordRequest)

	if err = handler.resetManager.Redeem(ctx, tx, resetRequest.Token, resetRequest.Email, resetRequest.Password); err != nil {
		if errors.Is(err, managers.ErrResetTokenInvalid) {
			err = nil
			utils.WriteValidationFailure(ctx, "The reset code is invalid or expired. Please request a new one.")
			return
		}
		utils.WriteAndLogError(ctx, schemas.DatabaseError, http.StatusInternalServerError, err)
		return
	}

	if err = utils.CommitTransaction(ctx, tx); err != nil {
		return
	}

	// Every session is gone now, the cookie with it.
	handler.setSessionCookie(ctx, "", -1)
	utils.WriteAndLogResponse(ctx, &schemas.Response{Success: true, Message: "Your password has been changed. Please log in again."}, http.StatusOK)
}

func (handler *AuthHandler) setSessionCookie(ctx *gin.Context, token string, maxAge int) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(middleware.AuthTokenCookie, token, maxAge, "/", "", handler.production, true)
}

// checkEmailProfileNameTaken reports whether the email or the profile name is
// already in use, with a message naming the conflicting field.
func checkEmailProfileNameTaken(ctx *gin.Context, tx pgx.Tx, email, profileName string) (bool, string, error) {
	queryString := "SELECT email, profile_name FROM kith_schema.users WHERE email = $1 OR profile_name = $2"
	rows, err := tx.Query(ctx, queryString, email, profileName)
	if err != nil {
		return false, "", err
	}
	defer rows.Close()

	for rows.Next() {
		var existingEmail, existingProfileName string
		if err := rows.Scan(&existingEmail, &existingProfileName); err != nil {
			return false, "", err
		}
		if existingEmail == email {
			return true, schemas.EmailTaken.Message, nil
		}
		if existingProfileName == profileName {
			return true, schemas.ProfileNameTaken.Message, nil
		}
	}

	return false, "", rows.Err()
}

// activateDisplayName inserts a new active display name entry and returns the
// per-name index that disambiguates it.
func activateDisplayName(ctx *gin.Context, tx pgx.Tx, userId, displayName string, activatedAt time.Time) (int, error) {
	var nameIndex int
	queryString := "SELECT COALESCE(MAX(name_index), 0) + 1 FROM kith_schema.display_names WHERE display_name = $1"
	if err := tx.QueryRow(ctx, queryString, displayName).Scan(&nameIndex); err != nil {
		return 0, err
	}

	queryString = "INSERT INTO kith_schema.display_names (display_name_id, user_id, display_name, name_index, activated_at, is_active) VALUES ($1, $2, $3, $4, $5, TRUE)"
	if _, err := tx.Exec(ctx, queryString, uuid.New(), userId, displayName, nameIndex, activatedAt); err != nil {
		return 0, err
	}

	return nameIndex, nil
}

func loadLoginDetails(ctx *gin.Context, tx pgx.Tx, userId uuid.UUID) (*schemas.LoginDetailsDTO, error) {
	details := &schemas.LoginDetailsDTO{}
	queryString := "SELECT u.profile_name, d.display_name, d.name_index FROM kith_schema.users u " +
		"JOIN kith_schema.display_names d ON d.user_id = u.user_id AND d.is_active " +
		"WHERE u.user_id = $1"
	err := tx.QueryRow(ctx, queryString, userId).Scan(&details.ProfileName, &details.DisplayName, &details.DisplayNameIndex)
	if err != nil {
		return nil, err
	}

	return details, nil
}

func activeDisplayName(ctx *gin.Context, tx pgx.Tx, email string) (string, error) {
	var displayName string
	queryString := "SELECT d.display_name FROM kith_schema.display_names d " +
		"JOIN kith_schema.users u ON u.user_id = d.user_id " +
		"WHERE u.email = $1 AND d.is_active"
	err := tx.QueryRow(ctx, queryString, email).Scan(&displayName)
	return displayName, err
}
