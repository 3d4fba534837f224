package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/app"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

// Login signs in as the given role. Fields are key=value pairs forwarded as
// the login body.
func Login(ctx context.Context, config *apt.Config, logger apt.Logger, out io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: login <role> key=value...")
	}
	r := role.ByName(args[0])
	if r == nil {
		return fmt.Errorf("unknown role %q", args[0])
	}

	fields, err := ParseFields(args[1:])
	if err != nil {
		return err
	}

	return withEngine(ctx, config, logger, func(e *app.Engine) error {
		creds, err := e.Sessions.Login(ctx, *r, fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s\n", creds.Role.Code())
		if len(creds.User) > 0 {
			fmt.Fprintf(out, "User: %s\n", creds.User)
		}
		return nil
	})
}

// Logout ends the stored session.
func Logout(ctx context.Context, config *apt.Config, logger apt.Logger, out io.Writer) error {
	return withEngine(ctx, config, logger, func(e *app.Engine) error {
		r := e.Role
		if creds, err := e.Credentials.Get(ctx); err == nil && creds != nil && creds.Role.Valid() {
			r = creds.Role
		}
		if err := e.Sessions.Logout(ctx, r); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged out (%s)\n", r.Code())
		return nil
	})
}

// Session runs one session check and prints the outcome.
func Session(ctx context.Context, config *apt.Config, logger apt.Logger, out io.Writer) error {
	return withEngine(ctx, config, logger, func(e *app.Engine) error {
		status := e.Validator.Check(ctx)
		defer e.Validator.Stop(context.Background())

		fmt.Fprintf(out, "Outcome: %s\n", status.Outcome)
		fmt.Fprintf(out, "Valid:   %t\n", status.Valid)
		if status.Role != "" {
			fmt.Fprintf(out, "Role:    %s\n", status.Role.Code())
		}
		if len(status.User) > 0 {
			fmt.Fprintf(out, "User:    %s\n", status.User)
		}
		if status.Message != "" {
			fmt.Fprintf(out, "Message: %s\n", status.Message)
		}
		return nil
	})
}

// ParseFields turns key=value arguments into a map.
func ParseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", arg)
		}
		fields[k] = v
	}
	return fields, nil
}

func withEngine(ctx context.Context, config *apt.Config, logger apt.Logger, fn func(e *app.Engine) error) error {
	e, err := app.NewEngine(config, logger)
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := e.Stop(context.Background()); err != nil {
			logger.Error("cannot release credential backend", "error", err)
		}
	}()
	return fn(e)
}
