package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/auth"
	"github.com/harrisonrobin/taskdeck/pkg/config"
)

var errLocalBackend = errors.New("the local backend has no accounts; set local.user_id and local.email in the config instead")

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&f.password, "password", "", "account password (read from stdin when omitted)")
}

// complete asks on stdin for whatever was not given as a flag.
func (f *credentialFlags) complete(a *app, cmd *cobra.Command) error {
	r := bufio.NewReader(a.in)
	ask := func(prompt string) (string, error) {
		printf(cmd, "%s: ", prompt)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
		}
		return strings.TrimSpace(line), nil
	}
	var err error
	if f.email == "" {
		if f.email, err = ask("E-mail"); err != nil {
			return err
		}
	}
	if f.password == "" {
		if f.password, err = ask("Password"); err != nil {
			return err
		}
	}
	if strings.TrimSpace(f.email) == "" {
		return &apperr.ValidationError{Field: "email", Msg: "must not be empty"}
	}
	if f.password == "" {
		return &apperr.ValidationError{Field: "password", Msg: "must not be empty"}
	}
	return nil
}

func (a *app) loginCommand() *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Backend == config.BackendLocal {
				return errLocalBackend
			}
			if err := creds.complete(a, cmd); err != nil {
				return err
			}
			client, err := a.supabaseClient()
			if err != nil {
				return err
			}
			tok, err := client.SignIn(cmd.Context(), strings.TrimSpace(creds.email), creds.password)
			if err != nil {
				return err
			}
			path, err := auth.Path(auth.SessionFile)
			if err != nil {
				return err
			}
			if err := auth.SaveToken(path, tok); err != nil {
				return err
			}
			a.log.Debug("session saved", zap.String("path", path))
			printf(cmd, "Signed in as %s.\n", strings.TrimSpace(creds.email))
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) signupCommand() *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Backend == config.BackendLocal {
				return errLocalBackend
			}
			if err := creds.complete(a, cmd); err != nil {
				return err
			}
			client, err := a.supabaseClient()
			if err != nil {
				return err
			}
			if err := client.SignUp(cmd.Context(), strings.TrimSpace(creds.email), creds.password); err != nil {
				return err
			}
			printf(cmd, "Account created. Confirm your e-mail, then run `taskdeck login`.\n")
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Backend == config.BackendLocal {
				return errLocalBackend
			}
			path, err := auth.Path(auth.SessionFile)
			if err != nil {
				return err
			}
			tok, err := auth.LoadToken(path)
			if err != nil {
				printf(cmd, "Not signed in.\n")
				return nil
			}
			if client, err := a.supabaseClient(); err == nil {
				if err := client.SignOut(cmd.Context(), tok); err != nil {
					a.log.Warn("server sign-out failed, forgetting the session anyway", zap.Error(err))
				}
			}
			if err := auth.RemoveToken(path); err != nil {
				return err
			}
			printf(cmd, "Signed out.\n")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDeck(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			email := d.auth.Email
			if email == "" {
				email = "(no e-mail)"
			}
			printf(cmd, "%s\nid: %s\nrole: %s\nbackend: %s\n", email, d.auth.UserID, d.auth.Role, a.cfg.Backend)
			return nil
		},
	}
}
