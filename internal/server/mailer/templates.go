package mailer

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{- define "verification" -}}
Here's your link to verify your email: {{ .Link }}
{{- end -}}
{{- define "password_reset" -}}
Here's your link to reset your password: {{ .Link }}
{{- end -}}
{{- define "password_reset_confirmation" -}}
Your password was reset successfully.
{{- end -}}
`))

// VerificationLink is <appURL>api/registration/email/verify?id=<guid>&code=<code>.
func VerificationLink(appURL, accountGUID, code string) string {
	return link(appURL, "api/registration/email/verify", accountGUID, code)
}

// PasswordResetLink is <appURL>api/password/reset?id=<guid>&code=<token>.
func PasswordResetLink(appURL, accountGUID, token string) string {
	return link(appURL, "api/password/reset", accountGUID, token)
}

func VerificationEmail(to, appURL, accountGUID, code string) (Message, error) {
	return render(KindVerification, to, "Email verification", VerificationLink(appURL, accountGUID, code))
}

func PasswordResetEmail(to, appURL, accountGUID, token string) (Message, error) {
	return render(KindPasswordReset, to, "Password Reset", PasswordResetLink(appURL, accountGUID, token))
}

func PasswordResetConfirmationEmail(to string) (Message, error) {
	return render(KindPasswordResetConfirmation, to, "Password Reset Confirmation", "")
}

func link(appURL, path, id, code string) string {
	return fmt.Sprintf("%s%s?id=%s&code=%s", appURL, path, url.QueryEscape(id), url.QueryEscape(code))
}

func render(kind Kind, to, subject, link string) (Message, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, string(kind), struct{ Link string }{Link: link}); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return Message{Kind: kind, To: to, Subject: subject, Body: body.String()}, nil
}
