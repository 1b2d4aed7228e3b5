package model

import "time"

// AuthStatus is the position of an identity in the grant flow.
type AuthStatus string

const (
	StatusUnauthorized AuthStatus = "unauthorized"
	StatusPending      AuthStatus = "pending"
	StatusAuthorized   AuthStatus = "authorized"
)

// AuthorizationRecord is the persisted OAuth state for one chat sender.
// Credentials are stored encrypted. Version increases on every write and is
// the compare-and-swap key for concurrent refreshes.
type AuthorizationRecord struct {
	Identity              string     `json:"identity" dynamodbav:"identity"`
	Status                AuthStatus `json:"status" dynamodbav:"status"`
	EncryptedAccessToken  string     `json:"encrypted_access_token,omitempty" dynamodbav:"encrypted_access_token,omitempty"`
	EncryptedRefreshToken string     `json:"encrypted_refresh_token,omitempty" dynamodbav:"encrypted_refresh_token,omitempty"`
	Expiry                time.Time  `json:"expiry" dynamodbav:"expiry"`
	PendingNonce          string     `json:"pending_nonce,omitempty" dynamodbav:"pending_nonce,omitempty"`
	AccountEmail          string     `json:"account_email,omitempty" dynamodbav:"account_email,omitempty"`
	Version               int64      `json:"version" dynamodbav:"version"`
	UpdatedAt             time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

// Lease is a short-lived exclusive claim on a key (e.g. an identity's refresh).
type Lease struct {
	Key       string `json:"key" dynamodbav:"lease_key"`
	Owner     string `json:"owner" dynamodbav:"owner"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}
