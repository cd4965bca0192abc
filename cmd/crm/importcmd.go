package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/travel-crm/internal/importer"
)

func newImportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "import", Short: "Import leads in bulk"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "csv PATH|s3://BUCKET/KEY",
			Short: "Import a CSV export from a file or an S3 object",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				src, err := c.app.CSVSource(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.runImport(cmd, src)
			},
		},
		&cobra.Command{
			Use:   "inbox",
			Short: "Import trip inquiries from the configured IMAP mailbox",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				src, err := c.app.InboxSource()
				if err != nil {
					return authHint(err)
				}
				return c.runImport(cmd, src)
			},
		},
	)
	return cmd
}

func (c *cli) runImport(cmd *cobra.Command, src importer.Source) error {
	if _, err := c.connect(cmd.Context()); err != nil {
		return err
	}
	res, added, err := c.app.Import(cmd.Context(), src)
	if err != nil {
		return authHint(err)
	}
	fmt.Fprintf(c.out, "Imported %d leads, skipped %d rows\n", added, res.Skipped)
	if added < len(res.Leads) {
		fmt.Fprintf(c.out, "%d accepted rows were not saved; see the log\n", len(res.Leads)-added)
	}
	return nil
}

func authHint(err error) error {
	if importer.IsAuthError(err) {
		return fmt.Errorf("%w (store it with `crm secret set inbox-password` or set CRM_INBOX_PASSWORD)", err)
	}
	return err
}
