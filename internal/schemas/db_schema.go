// Package schemas defines the data structures
package schemas

import (
	"time"

	"github.com/google/uuid"
)

// User represents the data model for a user in the system. The internal row id
// never leaves the persistence layer; UserID is the only identifier exposed.
type User struct {
	UserID            *uuid.UUID `json:"userId"`            // Opaque identifier of the user.
	Email             string     `json:"email"`             // Email address, unique.
	Password          string     `json:"-"`                 // bcrypt hash, never serialized.
	ProfileName       string     `json:"profileName"`       // Immutable lowercase handle, unique.
	PublicAccess      bool       `json:"publicAccess"`      // Whether anonymous callers may see the profile and posts.
	ProfilePictureURL string     `json:"profilePictureUrl"` // URL of the moderated profile picture.
	CreatedAt         *time.Time `json:"createdAt"`         // Timestamp of registration.
}

// DisplayName is one entry of a user's append-only display name history.
// At most one entry per user is active at a time.
type DisplayName struct {
	ID          *uuid.UUID `json:"id"`
	UserID      *uuid.UUID `json:"userId"`
	DisplayName string     `json:"displayName"` // Must not contain '#'.
	NameIndex   int        `json:"nameIndex"`   // Per-name disambiguator, increments monotonically.
	ActivatedAt *time.Time `json:"activatedAt"`
	IsActive    bool       `json:"isActive"`
}

// SessionToken is one row of the server-side session ledger. A bearer token is
// usable only while its ledger row exists, is valid and still names the user.
type SessionToken struct {
	JTI          uuid.UUID  `json:"jti"`
	UserID       *uuid.UUID `json:"userId"`       // nil once revoked.
	FormerUserID *uuid.UUID `json:"formerUserId"` // Audit back-reference after revocation.
	ExpiresAt    time.Time  `json:"expiresAt"`
	IsValid      bool       `json:"isValid"`
	RevokedAt    *time.Time `json:"revokedAt"`
}

// PasswordResetToken is a short-lived opaque token mailed to a user.
type PasswordResetToken struct {
	Token     string     `json:"token"` // 36 characters.
	UserID    *uuid.UUID `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Connection is a directed edge in the connection graph. IsMutual is stored
// redundantly on both directions and recomputed on every edge mutation.
type Connection struct {
	ID          *uuid.UUID `json:"id"`
	RequesterID *uuid.UUID `json:"requesterId"`
	RecipientID *uuid.UUID `json:"recipientId"`
	IsMutual    bool       `json:"isMutual"`
	CreatedAt   *time.Time `json:"createdAt"`
}

// Role is a catalog entry granted to users through a many-to-many link.
type Role struct {
	ID       *uuid.UUID `json:"id"`
	RoleName string     `json:"roleName"`
}

// SessionClaims is what the session middlewares attach to the request context
// after a token passed both the cryptographic and the ledger check.
type SessionClaims struct {
	UserID string
	JTI    string
}
