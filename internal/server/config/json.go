package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/inboxview/internal/flagx"
	"github.com/dmitrijs2005/inboxview/internal/timex"
)

// JsonConfig mirrors Config for unmarshalling. Pointer fields distinguish
// "absent" from "zero" so that a partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	DBConnectTimeout             *timex.Duration `json:"db_connect_timeout"`
	SecretKey                    *string         `json:"secret_key"`
	TokenIssuer                  *string         `json:"token_issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	AppURL                       *string         `json:"app_url"`
	MailFrom                     *string         `json:"mail_from"`
	SMTPHost                     *string         `json:"smtp_host"`
	SMTPPort                     *int            `json:"smtp_port"`
	SMTPUser                     *string         `json:"smtp_user"`
	SMTPPassword                 *string         `json:"smtp_password"`
	SMTPMaxConns                 *int            `json:"smtp_max_conns"`
	SMTPTimeout                  *timex.Duration `json:"smtp_timeout"`
	LogLevel                     *string         `json:"log_level"`
	LogFile                      *string         `json:"log_file"`
	CORSAllowedOrigins           []string        `json:"cors_allowed_origins"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $INBOXVIEW_CONFIG). Nothing happens when no file is named; an unreadable or
// malformed file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.AppURL, c.AppURL)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)

	if c.SMTPPort != nil {
		config.SMTPPort = *c.SMTPPort
	}
	if c.SMTPMaxConns != nil {
		config.SMTPMaxConns = *c.SMTPMaxConns
	}
	if c.DBConnectTimeout != nil {
		config.DBConnectTimeout = c.DBConnectTimeout.Duration
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.SMTPTimeout != nil {
		config.SMTPTimeout = c.SMTPTimeout.Duration
	}
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
