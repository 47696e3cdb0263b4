package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-g string    gRPC bind address (e.g., ":50051")
//	-d string    PostgreSQL DSN
//	-s string    JWT HMAC secret key
//	-t duration  access token lifetime (e.g., "15m")
//	-r int       refresh token lifetime, days
//	-redis string  Redis address for rate limiting
//	-l string    log level
//	-dev-tokens  return verification and reset tokens in responses
//	-cookie      deliver refresh tokens in cookies
func parseFlags(config *Config) {
	args := flagx.FilterArgsWithBools(os.Args[1:],
		[]string{"-a", "-g", "-d", "-s", "-t", "-r", "-redis", "-l"},
		[]string{"-dev-tokens", "-cookie"},
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.IntVar(&config.RefreshTokenTTLDays, "r", config.RefreshTokenTTLDays, "refresh token lifetime (in days)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.DevReturnTokens, "dev-tokens", config.DevReturnTokens, "return verification and reset tokens in responses")
	fs.BoolVar(&config.RefreshCookieEnabled, "cookie", config.RefreshCookieEnabled, "deliver refresh tokens in cookies")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
