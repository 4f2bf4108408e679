// Package model defines the timecard aggregate and the resource accounts that own timecards.
package model

import "time"

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Account is a resource able to log in. Sensitive keys are never stored in plaintext.
type Account struct {
	Resource  int    // PK, the principal recorded on timecards
	Username  string // unique
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte // per-account salt
	CreatedAt time.Time
}
