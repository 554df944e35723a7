package domain

import "time"

// Credential holds the OAuth tokens one user granted for one module.
// AccessToken and RefreshToken are encrypted by the persistence layer.
type Credential struct {
	ID                 string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID             string     `bson:"user_id" json:"user_id"`
	Module             string     `bson:"module" json:"module"`
	AccessToken        string     `bson:"access_token,omitempty" json:"-"`
	RefreshToken       string     `bson:"refresh_token,omitempty" json:"-"`
	AccessTokenExpire  *time.Time `bson:"access_token_expire,omitempty" json:"access_token_expire,omitempty"`
	RefreshTokenExpire *time.Time `bson:"refresh_token_expire,omitempty" json:"refresh_token_expire,omitempty"`
	ExternalID         string     `bson:"external_id,omitempty" json:"external_id,omitempty"` // e.g. HubSpot portal, QBO realm
	AuthIsValid        bool       `bson:"auth_is_valid" json:"auth_is_valid"`
	CreatedAt          time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at" json:"updated_at"`
}

// CredentialFilter selects credentials. Empty fields are ignored.
type CredentialFilter struct {
	UserID     string
	Module     string
	ExternalID string
}

// CredentialUpdate is a partial update; nil fields are left untouched.
type CredentialUpdate struct {
	AccessToken        *string
	RefreshToken       *string
	AccessTokenExpire  *time.Time
	RefreshTokenExpire *time.Time
	ExternalID         *string
	AuthIsValid        *bool
}
