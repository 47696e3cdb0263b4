// Package authctl implements the operator commands of the authctl binary.
package authctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// ErrUsage is returned for an unknown or missing command.
var ErrUsage = errors.New("usage: authctl <seed-admin|migrate> [flags]")

// AdminSeeder is implemented by services.AccountService.
type AdminSeeder interface {
	EnsureAdmin(ctx context.Context, email, username, password string) (bool, error)
}

// App runs one operator command.
type App struct {
	in      *bufio.Reader
	out     io.Writer
	seeder  AdminSeeder
	migrate func(ctx context.Context) error
}

func NewApp(in io.Reader, out io.Writer, seeder AdminSeeder, migrate func(ctx context.Context) error) *App {
	return &App{in: bufio.NewReader(in), out: out, seeder: seeder, migrate: migrate}
}

// Run dispatches args[0]. The remaining args may mix command flags with
// server configuration flags; each side picks its own.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "seed-admin":
		return a.seedAdmin(ctx, args[1:])
	case "migrate":
		if err := a.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
		return nil
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, ErrUsage.Error())
		fmt.Fprintln(a.out, "  seed-admin [-email E] [-username U]  create or promote an admin account")
		fmt.Fprintln(a.out, "  migrate                              apply database migrations")
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
}

func (a *App) seedAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed-admin", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "admin email")
	username := fs.String("username", "", "admin username")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-username"})); err != nil {
		return err
	}

	var err error
	if strings.TrimSpace(*email) == "" {
		if *email, err = GetSimpleText(a.in, "Email", a.out); err != nil {
			return err
		}
	}
	if strings.TrimSpace(*username) == "" {
		if *username, err = GetSimpleText(a.in, "Username", a.out); err != nil {
			return err
		}
	}
	pw, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	created, err := a.seeder.EnsureAdmin(ctx, *email, *username, string(pw))
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(a.out, "admin %s created\n", *email)
	} else {
		fmt.Fprintf(a.out, "existing account %s promoted to admin\n", *email)
	}
	return nil
}
