package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// WebAuthnCredential stores one registered authenticator. Credential id and
// public key are kept base64url-encoded, matching the wire format.
type WebAuthnCredential struct {
	CredentialID string    `bson:"credentialID" json:"credentialID"`
	PublicKey    string    `bson:"credentialPublicKey" json:"-"`
	Counter      uint32    `bson:"counter" json:"-"`
	Transports   []string  `bson:"transports" json:"transports,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Avatar       string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role         string             `bson:"role" json:"role"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	LastLogin    *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`

	// lockout state
	LoginAttempts int        `bson:"loginAttempts" json:"-"`
	LockUntil     *time.Time `bson:"lockUntil,omitempty" json:"-"`

	Provider   string `bson:"provider" json:"provider"`
	ProviderID string `bson:"providerId,omitempty" json:"-"`

	WebAuthnCredentials []WebAuthnCredential `bson:"webAuthnCredentials,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Locked reports whether the lockout window is still open.
func (u *User) Locked() bool {
	return u.LockUntil != nil && u.LockUntil.After(time.Now())
}
