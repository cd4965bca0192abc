package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/theme"
)

func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func newLoginCmd(c *cli) *cobra.Command {
	var passcode string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your passcode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passcode == "" {
				if !interactive() {
					return errors.New("--passcode required when stdin is not a terminal")
				}
				err := huh.NewInput().
					Title("Passcode").
					EchoMode(huh.EchoModePassword).
					Value(&passcode).
					Run()
				if err != nil {
					return err
				}
			}

			s, err := c.app.Session.Login(passcode)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Signed in as %s (%s) until %s\n",
				s.Actor.Name, s.Actor.Role, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&passcode, "passcode", "p", "", "Passcode (prompted when omitted)")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.app.Session.Current()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (%s), session expires %s\n",
				s.Actor.Name, s.Actor.Role, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newThemeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [name]",
		Short:     "Show or set the board theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: theme.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(c.out, c.app.Theme().Name)
				return nil
			}
			name := strings.ToLower(args[0])
			if !theme.Valid(name) {
				return fmt.Errorf("unknown theme %q (choose from %s)", name, strings.Join(theme.Names, ", "))
			}
			if err := c.app.Session.SetTheme(name); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Theme set to %s\n", name)
			return nil
		},
	}
}

// secretKeys maps command-line names to keyring keys.
var secretKeys = map[string]string{
	"rest-api-key":   credential.KeyRemoteAPIKey,
	"inbox-password": credential.KeyInboxPassword,
}

func newSecretCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "secret", Short: "Manage credentials in the device keyring"}

	var value string
	set := &cobra.Command{
		Use:       "set rest-api-key|inbox-password",
		Short:     "Store a credential",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"rest-api-key", "inbox-password"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := secretKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown secret %q", args[0])
			}
			if value == "" {
				if !interactive() {
					return errors.New("--value required when stdin is not a terminal")
				}
				err := huh.NewInput().
					Title(args[0]).
					EchoMode(huh.EchoModePassword).
					Value(&value).
					Run()
				if err != nil {
					return err
				}
			}
			if err := c.app.Vault.Set(key, value); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Stored %s\n", args[0])
			return nil
		},
	}
	set.Flags().StringVar(&value, "value", "", "Secret value (prompted when omitted)")

	del := &cobra.Command{
		Use:   "delete rest-api-key|inbox-password",
		Short: "Remove a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := secretKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown secret %q", args[0])
			}
			if err := c.app.Vault.Delete(key); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
