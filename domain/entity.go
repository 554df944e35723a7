package domain

import "time"

// Entity is the external account (HubSpot portal, QBO company, Microsoft
// user...) a local user connected. At most one exists per
// (UserID, Module, ExternalID).
type Entity struct {
	ID           string    `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       string    `bson:"user_id" json:"user_id"`
	Module       string    `bson:"module" json:"type"`
	CredentialID string    `bson:"credential_id,omitempty" json:"credential_id,omitempty"`
	ExternalID   string    `bson:"external_id" json:"external_id"`
	Name         string    `bson:"name" json:"name"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// EntityFilter selects entities. Empty fields are ignored.
type EntityFilter struct {
	UserID     string
	Module     string
	ExternalID string
}

// EntityDetails identifies the external account behind a set of tokens.
type EntityDetails struct {
	ExternalID string
	Name       string
}
