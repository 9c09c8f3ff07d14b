package models

import "time"

type EmailVerification struct {
	ID           int64
	AccountID    int64
	Code         string
	AttemptCount int
	DateAdded    time.Time
	DateVerified *time.Time
	DateDeleted  *time.Time
}
