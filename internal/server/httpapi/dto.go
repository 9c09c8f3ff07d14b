package httpapi

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/server/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identifier accepts either field; older clients send the username as email.
func (r loginRequest) identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpireAt     time.Time `json:"expireAt"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
}

type registrationRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type registrationResponse struct {
	ID                        string `json:"id"`
	Email                     string `json:"email"`
	FirstName                 string `json:"firstName"`
	LastName                  string `json:"lastName"`
	Phone                     string `json:"phone"`
	EmailVerificationRequired bool   `json:"emailVerificationRequired"`
	EmailVerificationSent     bool   `json:"emailVerificationSent"`
}

type resendVerificationRequest struct {
	ID string `json:"id"`
}

type passwordResetRequest struct {
	ID                   string `json:"id"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	Token                string `json:"token"`
}

type userResponse struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone"`
	IsVerified bool   `json:"isVerified"`
}

func newUserResponse(a *models.Account) userResponse {
	return userResponse{
		Email:      a.Email,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Phone:      a.Phone,
		IsVerified: a.Verified(),
	}
}

type updateUserRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

type transactionResponse struct {
	TransactionID   int64       `json:"transactionId"`
	MerchantName    string      `json:"merchantName"`
	TransactionDate string      `json:"transactionDate"`
	Amount          json.Number `json:"amount"`
}

func newTransactionResponses(txs []models.MailboxTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			TransactionID:   t.ID,
			MerchantName:    t.MerchantName,
			TransactionDate: t.TransactionDate.Format(time.DateOnly),
			Amount:          json.Number(t.Amount),
		})
	}
	return out
}
