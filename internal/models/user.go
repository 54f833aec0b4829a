package models

import "time"

// User is a local account. HashedPassword is empty for OAuth-only users and
// Email is empty when the identity provider did not share one.
type User struct {
	ID             string    `bson:"_id" json:"id"`
	Email          string    `bson:"email,omitempty" json:"email,omitempty"`
	Username       string    `bson:"username" json:"username"`
	HashedPassword string    `bson:"hashedPassword,omitempty" json:"-"`
	IsActive       bool      `bson:"isActive" json:"is_active"`
	IsSuperuser    bool      `bson:"isSuperuser" json:"is_superuser"`
	OAuthProvider  string    `bson:"oauthProvider,omitempty" json:"oauth_provider,omitempty"`
	OAuthID        string    `bson:"oauthId,omitempty" json:"oauth_id,omitempty"`
	Name           string    `bson:"name,omitempty" json:"name,omitempty"`
	ProfileImage   string    `bson:"profileImage,omitempty" json:"profile_image,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updated_at"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.HashedPassword != ""
}
