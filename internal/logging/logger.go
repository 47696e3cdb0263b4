// Package logging is the structured logger shared by the HTTP API, the gRPC
// health server, the sweeper and the operator CLI.
package logging

import "context"

// Logger writes leveled records. Request-scoped attributes such as the
// request id are pulled from ctx by the implementation; args are key/value
// pairs:
//
//	log.Warn(ctx, "account locked", "email", email, "until", until)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}
