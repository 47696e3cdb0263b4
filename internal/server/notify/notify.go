// Package notify delivers account emails (verification and password reset).
// Delivery is best effort: callers dispatch in the background and never see
// the outcome.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Notifier sends a plain-text message to an address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, to, subject, _ string) error {
	n.log.Info(ctx, "email delivery disabled, message skipped", "to", to, "subject", subject)
	return nil
}

// Dispatcher runs a Notifier off the request path with a timeout. Failures
// are logged at warn level.
type Dispatcher struct {
	n       Notifier
	log     logging.Logger
	timeout time.Duration

	// sent is called after each attempt; tests use it to wait for delivery.
	sent func(err error)
}

func NewDispatcher(n Notifier, log logging.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{n: n, log: log, timeout: timeout}
}

// Dispatch sends in a new goroutine and returns at once. The request context
// only contributes its values; its cancellation does not abort delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, to, subject, body string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		err := d.n.Send(ctx, to, subject, body)
		if err != nil {
			d.log.Warn(ctx, "notification failed", "subject", subject, "error", err)
		}
		if d.sent != nil {
			d.sent(err)
		}
	}()
}

// Link appends token as the "token" query parameter of baseURL+path.
func Link(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// VerifyEmailMessage returns the subject and body of the verification mail.
func VerifyEmailMessage(appURL, username, token string) (string, string) {
	link := Link(appURL, "/verify-email", token)
	greeting := "Hi,"
	if username != "" {
		greeting = fmt.Sprintf("Hi %s,", username)
	}
	body := fmt.Sprintf("%s\n\nPlease verify your email by opening the link below:\n\n%s\n", greeting, link)
	return "Verify your account", body
}

// PasswordResetMessage returns the subject and body of the reset mail.
func PasswordResetMessage(appURL, token string, ttl time.Duration) (string, string) {
	link := Link(appURL, "/reset-password", token)
	body := fmt.Sprintf("Hello,\n\nReset your password using the link below (valid for %s):\n\n%s\n", ttl, link)
	return "Reset your password", body
}
