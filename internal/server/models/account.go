// Package models holds the persisted entities of the account service.
package models

import "time"

// Account is a registered user. DateDeleted != nil marks a soft-deleted row,
// which no lookup returns.
type Account struct {
	ID           int64
	GUID         string
	Username     string
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Phone        string
	DateAdded    time.Time
	DateUpdated  time.Time
	DateDeleted  *time.Time
	DateVerified *time.Time
	Version      int

	PasswordResetToken         *string
	PasswordResetDateRequested *time.Time
	PasswordResetCount         int
	PasswordDateReset          *time.Time
}

// Verified reports whether the account's email has been confirmed.
func (a *Account) Verified() bool {
	return a.DateVerified != nil
}
