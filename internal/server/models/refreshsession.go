package models

import "time"

// RefreshSession pairs the client-facing refresh token (GUID) with the one
// access token currently allowed to be exchanged for a new one.
type RefreshSession struct {
	ID             int64
	GUID           string
	AccessToken    string
	AccountID      int64
	DateAdded      time.Time
	ExpirationDate time.Time
}

// Active reports whether the session can still be used at now.
func (s *RefreshSession) Active(now time.Time) bool {
	return now.Before(s.ExpirationDate)
}
