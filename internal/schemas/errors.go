package schemas

// CustomError is the error shape returned to clients. The message is always
// user-facing; internal error text stays in the server logs.
type CustomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	BadRequest         = &CustomError{"ERR-001", "The request body is invalid. Please check the request body and try again."}
	ProfileNameTaken   = &CustomError{"ERR-002", "The profile name is already taken. Please try another one."}
	EmailTaken         = &CustomError{"ERR-003", "The email is already registered."}
	UserNotFound       = &CustomError{"ERR-004", "The requested user does not exist."}
	InvalidCredentials = &CustomError{"ERR-005", "The email or password is incorrect."}
	Unauthorized       = &CustomError{"ERR-006", "The request is unauthorized. Please log in and try again."}
	Forbidden          = &CustomError{"ERR-007", "You are not allowed to perform this action."}
	InternalServerError = &CustomError{"ERR-008", "Something went wrong on our side. Please try again later."}
	DatabaseError       = &CustomError{"ERR-009", "Something went wrong on our side. Please try again later."}
	SessionNotSecured   = &CustomError{"ERR-010", "We failed to secure a session for you. Please try logging in again."}
	PostNotFound        = &CustomError{"ERR-011", "The requested post does not exist."}
	ConnectionNotFound  = &CustomError{"ERR-012", "There is no connection to this user."}
	NotificationNotFound = &CustomError{"ERR-013", "The requested notification does not exist."}
	PictureRejected      = &CustomError{"ERR-014", "The uploaded picture was rejected by content moderation."}
	PictureInvalid       = &CustomError{"ERR-015", "The uploaded file is not a supported image."}
)
