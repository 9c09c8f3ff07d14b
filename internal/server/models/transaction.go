package models

import "time"

// MailboxTransaction is a purchase extracted from a user's mailbox.
// Amount is kept as the decimal string Postgres returns for NUMERIC.
type MailboxTransaction struct {
	ID              int64
	AccountID       int64
	MerchantName    string
	Amount          string
	TransactionDate time.Time
}
