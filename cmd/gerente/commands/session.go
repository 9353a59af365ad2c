package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/gerente/internal/resource"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "username (prompted when omitted)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	d, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.cleanup()

	in := bufio.NewReader(inReader(cmd))
	out := errWriter(cmd)

	username := cmd.String("username")
	if username == "" {
		fmt.Fprint(out, "Username: ")
		if username, err = readLine(in); err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword(inReader(cmd), in)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := d.app.Client().Login(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintf(outWriter(cmd), "logged in as %s\n", username)
	return nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(src io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := src.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
	return readLine(buffered)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "remove the stored session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer d.cleanup()

			if err := d.app.Client().Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(outWriter(cmd), "logged out")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the stored session and the authenticated user",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "only inspect the stored tokens, do not call the API",
			},
		},
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	d, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.cleanup()

	out := outWriter(cmd)
	client := d.app.Client()

	creds, err := client.Session(ctx)
	if err != nil {
		return err
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		fmt.Fprintln(out, "authenticated: no")
		return nil
	}

	fmt.Fprintln(out, "authenticated: yes")
	if claims, err := creds.Claims(); err == nil {
		if claims.UserID != "" {
			fmt.Fprintf(out, "user id:       %s\n", claims.UserID)
		}
		if !claims.ExpiresAt.IsZero() {
			state := "valid for " + time.Until(claims.ExpiresAt).Round(time.Second).String()
			if claims.Expired(time.Now()) {
				state = "expired, renewed on next request"
			}
			fmt.Fprintf(out, "access token:  %s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC3339), state)
		}
	}

	if cmd.Bool("offline") {
		return nil
	}

	me, err := resource.Me(ctx, client)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}
	fmt.Fprintf(out, "username:      %s\n", me.Username)
	if name := strings.TrimSpace(me.FirstName + " " + me.LastName); name != "" {
		fmt.Fprintf(out, "name:          %s\n", name)
	}
	if me.Email != "" {
		fmt.Fprintf(out, "email:         %s\n", me.Email)
	}
	return nil
}
