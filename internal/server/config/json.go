package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonRateRule is the file form of RateRule.
type JsonRateRule struct {
	Limit  int            `json:"limit"`
	Window timex.Duration `json:"window"`
}

// JsonConfig is the DTO read from the JSON config file. Durations use
// timex.Duration, so "15m" and integer nanoseconds both work. Pointer
// fields distinguish an explicit false/zero from an absent key.
type JsonConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc"`
	DatabaseDSN         string         `json:"database_dsn"`
	LogLevel            string         `json:"log_level"`
	RedisAddr           string         `json:"redis_addr"`
	RedisPassword       string         `json:"redis_password"`
	RedisDB             int            `json:"redis_db"`
	SecretKey           string         `json:"secret_key"`
	JWTIssuer           string         `json:"jwt_issuer"`
	AccessTokenTTL      timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTLDays int            `json:"refresh_token_ttl_days"`
	BcryptCost          int            `json:"bcrypt_cost"`

	DevReturnTokens      *bool  `json:"dev_return_tokens"`
	RefreshCookieEnabled *bool  `json:"refresh_cookie_enabled"`
	CSRFForRefresh       *bool  `json:"csrf_for_refresh"`
	CookieSecure         *bool  `json:"cookie_secure"`
	AppURL               string `json:"app_url"`

	AdminUser     string `json:"admin_user"`
	AdminPassword string `json:"admin_password"`

	RateLimits map[string]JsonRateRule `json:"rate_limits"`

	LockoutThreshold   int            `json:"lockout_threshold"`
	LockoutWindow      timex.Duration `json:"lockout_window"`
	LockoutBaseBackoff timex.Duration `json:"lockout_base_backoff"`
	LockoutMaxBackoff  timex.Duration `json:"lockout_max_backoff"`
	ResetMinDelay      timex.Duration `json:"reset_min_delay"`

	SweepInterval  timex.Duration `json:"sweep_interval"`
	TokenRetention timex.Duration `json:"token_retention"`

	SMTPHost      string         `json:"smtp_host"`
	SMTPPort      int            `json:"smtp_port"`
	SMTPUsername  string         `json:"smtp_username"`
	SMTPPassword  string         `json:"smtp_password"`
	EmailFrom     string         `json:"email_from"`
	NotifyTimeout timex.Duration `json:"notify_timeout"`

	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads the file named by -c/-config, if any, and copies every
// key it sets into config. The function panics when the file cannot be
// read or is not valid JSON.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setInt(&config.RefreshTokenTTLDays, c.RefreshTokenTTLDays)
	setInt(&config.BcryptCost, c.BcryptCost)

	setBool(&config.DevReturnTokens, c.DevReturnTokens)
	setBool(&config.RefreshCookieEnabled, c.RefreshCookieEnabled)
	setBool(&config.CSRFForRefresh, c.CSRFForRefresh)
	setBool(&config.CookieSecure, c.CookieSecure)
	setString(&config.AppURL, c.AppURL)

	setString(&config.AdminUser, c.AdminUser)
	setString(&config.AdminPassword, c.AdminPassword)

	rules := map[string]*RateRule{
		"register": &config.RateLimits.Register,
		"login":    &config.RateLimits.Login,
		"refresh":  &config.RateLimits.Refresh,
		"password": &config.RateLimits.Password,
		"global":   &config.RateLimits.Global,
	}
	for name, r := range c.RateLimits {
		dst, ok := rules[name]
		if !ok {
			continue
		}
		setInt(&dst.Limit, r.Limit)
		setDuration(&dst.Window, r.Window)
	}

	setInt(&config.LockoutThreshold, c.LockoutThreshold)
	setDuration(&config.LockoutWindow, c.LockoutWindow)
	setDuration(&config.LockoutBaseBackoff, c.LockoutBaseBackoff)
	setDuration(&config.LockoutMaxBackoff, c.LockoutMaxBackoff)
	setDuration(&config.ResetMinDelay, c.ResetMinDelay)

	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.TokenRetention, c.TokenRetention)

	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.EmailFrom, c.EmailFrom)
	setDuration(&config.NotifyTimeout, c.NotifyTimeout)

	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}
