// Package schemas defines the request structures for various operations in the application.
package schemas

// RegistrationRequest is a struct that represents a registration request
// ProfileName is required, lowercase, 3-20 characters and immutable once set
// DisplayName is required and must not contain '#'
// Password must be confirmed and satisfy the complexity rules
type RegistrationRequest struct {
	Email           string `json:"email" validate:"required,email"`
	DisplayName     string `json:"displayName" validate:"required,max=25,display_name_validation"`
	ProfileName     string `json:"profileName" validate:"required,min=3,max=20,profile_name_validation"`
	Password        string `json:"password" validate:"required,min=8,password_validation"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginRequest is a struct that represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LogoutRequest selects which sessions to revoke.
// FromHere revokes the current one, FromOtherLocations all other ones.
type LogoutRequest struct {
	FromHere           bool `json:"fromHere"`
	FromOtherLocations bool `json:"fromOtherLocations"`
}

// ResetPasswordRequestRequest is a struct that represents a reset-password-request request
type ResetPasswordRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is a struct that represents a reset-password request
// Token is the 36-character token mailed to the user
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required,len=36"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,password_validation"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// SetDisplayNameRequest is a struct that represents a display name change request
type SetDisplayNameRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=25,display_name_validation"`
}

// ConnectionUpdateRequest is a struct that represents an edge upsert request
// ConnectionTypes must resolve to at least one known catalog entry
type ConnectionUpdateRequest struct {
	ProfileName     string   `json:"profileName" validate:"required,min=3,max=20,profile_name_validation"`
	ConnectionTypes []string `json:"connectionTypes" validate:"required,min=1,dive,max=30"`
}

// CreatePostRequest is a struct that represents a create post request
// Content is required and must be less than 256 characters, as well as written in UTF-8
type CreatePostRequest struct {
	Content string `json:"content" validate:"required,max=256,post_validation"`
}

// CreateCommentRequest is a struct that represents a create comment request
// Content is required and must be less than 128 characters, as well as written in UTF-8
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,max=128,post_validation"`
}
