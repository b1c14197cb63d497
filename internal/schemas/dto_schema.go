package schemas

import "github.com/google/uuid"

// Response is the common envelope. Expected validation failures are reported
// with HTTP 200 and Success=false so clients handle them uniformly.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorDTO is a struct that represents an error response
// Error is the custom error, see CustomError
type ErrorDTO struct {
	Success bool        `json:"success"`
	Error   CustomError `json:"error"`
}

// LoginDetailsDTO is returned on a successful login next to the cookie.
type LoginDetailsDTO struct {
	ProfileName      string `json:"profileName"`
	DisplayName      string `json:"displayName"`
	DisplayNameIndex int    `json:"displayNameIndex"`
}

// LoginResponseDTO is a struct that represents a login response
// StartPage tells the client where to route after login
type LoginResponseDTO struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message,omitempty"`
	StartPage    string           `json:"startPage,omitempty"`
	LoginDetails *LoginDetailsDTO `json:"loginDetails,omitempty"`
}

// SetDisplayNameResponseDTO carries the disambiguator index of the new name.
type SetDisplayNameResponseDTO struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	DisplayNameIndex int    `json:"displayNameIndex,omitempty"`
}

// UserConnectionDTO is one edge as reported to clients.
type UserConnectionDTO struct {
	ProfileName     string   `json:"profileName"`
	DisplayName     string   `json:"displayName"`
	ConnectionTypes []string `json:"connectionTypes"`
	IsMutual        bool     `json:"isMutual"`
}

// ConnectionUpdateResponseDTO is a struct that represents an edge mutation response
// ActionTaken is one of "none", "added", "updated" and "removed"
type ConnectionUpdateResponseDTO struct {
	Success        bool               `json:"success"`
	Message        string             `json:"message,omitempty"`
	ActionTaken    string             `json:"actionTaken,omitempty"`
	UserConnection *UserConnectionDTO `json:"userConnection,omitempty"`
}

// UserProfileDTO is a struct that represents a user profile response
// ConnectionState is "none", "outgoing", "incoming" or "mutual" relative to the caller
type UserProfileDTO struct {
	ProfileName         string `json:"profileName"`
	DisplayName         string `json:"displayName"`
	DisplayNameIndex    int    `json:"displayNameIndex"`
	DisplayNameVerified bool   `json:"displayNameVerified"`
	ProfilePicture      string `json:"profilePicture"`
	Posts               int    `json:"posts"`
	Connections         int    `json:"connections"`
	ConnectionState     string `json:"connectionState,omitempty"`
}

// ProfilePictureDTO reports the stored picture location after a successful,
// moderated upload.
type ProfilePictureDTO struct {
	Success           bool   `json:"success"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

// DisplayNameDTO is one display-name history entry.
type DisplayNameDTO struct {
	DisplayName   string `json:"displayName"`
	NameIndex     int    `json:"nameIndex"`
	ActivatedDate string `json:"activatedDate"`
	IsActive      bool   `json:"isActive"`
	IsVerified    bool   `json:"isVerified"`
}

// AuthorDTO is a struct that represents an author response
type AuthorDTO struct {
	ProfileName       string `json:"profileName"`
	DisplayName       string `json:"displayName"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

// PostDTO is a struct that represents a post response
type PostDTO struct {
	PostID       string    `json:"postId"`
	Author       AuthorDTO `json:"author"`
	Content      string    `json:"content"`
	CreationDate string    `json:"creationDate"`
	Comments     int       `json:"comments"`
}

// CommentDTO is a struct that represents a comment response
type CommentDTO struct {
	CommentID    string    `json:"commentId"`
	Author       AuthorDTO `json:"author"`
	Content      string    `json:"content"`
	CreationDate string    `json:"creationDate"`
}

// NotificationDTO is a struct that represents a notification response
type NotificationDTO struct {
	NotificationID   string     `json:"notificationId"`
	NotificationType string     `json:"notificationType"`
	ActorProfileName string     `json:"actorProfileName,omitempty"`
	PostID           *uuid.UUID `json:"postId,omitempty"`
	IsRead           bool       `json:"isRead"`
	CreationDate     string     `json:"creationDate"`
}

// PaginatedResponse is a struct that represents a paginated response
// Records is the records of the response
// Pagination is the pagination of the response
type PaginatedResponse struct {
	Records    interface{} `json:"records"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination is a struct that represents a pagination
// Offset is the given offset of the pagination
// Limit is the given limit of the pagination
// Records is the total records of the pagination
type Pagination struct {
	Offset  int `json:"offset"`
	Limit   int `json:"limit"`
	Records int `json:"records"`
}

// MetadataDTO describes the running server version.
type MetadataDTO struct {
	ApiVersion string `json:"apiVersion"`
	ApiName    string `json:"apiName"`
}
