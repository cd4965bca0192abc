// Command crm is the command-line client of the travel CRM.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/travel-crm/internal/app"
	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/logger"
	"github.com/nhle/travel-crm/internal/model"
)

// cli holds the flags and the App shared by every subcommand.
type cli struct {
	configPath  string
	logLevel    string
	metricsAddr string
	historyPath string

	out       io.Writer
	errOut    io.Writer
	openVault func() (*credential.Vault, error)

	app *app.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, errOut: os.Stderr, openVault: credential.Open}
	err := newRootCmd(c).ExecuteContext(ctx)
	if cerr := c.teardown(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "crm",
		Short:         "Travel agency lead CRM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", model.DefaultConfigPath(), "Config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (overrides config)")
	root.PersistentFlags().StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	root.PersistentFlags().StringVar(&c.historyPath, "history", "", "JSON file holding local reminders and activity between runs")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newThemeCmd(c),
		newSecretCmd(c),
		newLeadsCmd(c),
		newRemindersCmd(c),
		newImportCmd(c),
		newBoardCmd(c),
		newMigrateCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := model.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}

	log := logger.New("travelcrm", logger.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		Out:     c.errOut,
	})

	vault, err := c.openVault()
	if err != nil {
		return err
	}

	c.app = app.New(cfg, vault, log)
	if c.historyPath != "" {
		if _, err := os.Stat(c.historyPath); err == nil {
			if err := c.app.LoadSeed(c.historyPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *cli) teardown() error {
	if c.app == nil {
		return nil
	}
	if c.historyPath != "" && c.app.Store != nil {
		if err := c.app.SaveSeed(c.historyPath); err != nil {
			c.app.Log.Error().Err(err).Str("path", c.historyPath).Msg("saving history")
		}
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// connect starts the store as the signed-in user.
func (c *cli) connect(ctx context.Context) (model.Actor, error) {
	actor, err := c.app.ConnectAsCurrent(ctx)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w (run `crm login`)", err)
	}
	return actor, nil
}

func newBoardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the live lead board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			return c.app.RunBoard(cmd.Context(), actor)
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the leads table of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.app.OpenTable(cmd.Context()); err != nil {
				return err
			}
			driver := c.app.Config.Remote.Driver
			if driver == "" {
				driver = model.DriverSQLite
			}
			fmt.Fprintf(c.out, "%s backend is up to date\n", driver)
			return nil
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or create the config file"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(c.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", c.configPath)
			}
			if err := model.SaveConfig(c.configPath, c.app.Config); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Wrote %s\n", c.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(c.out, c.configPath)
			return nil
		},
	}

	cmd.AddCommand(initCmd, path)
	return cmd
}
