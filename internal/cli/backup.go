package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/grocerylist/internal/backup"
	"github.com/spf13/cobra"
)

const passphraseEnv = "GROCERY_BACKUP_PASSPHRASE"

func newBackupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted backups in S3-compatible storage",
		Example: "  grocerylist backup run --passphrase \"backup-pass\"\n" +
			"  grocerylist backup list\n" +
			"  grocerylist backup restore grocerylist/backup-2026-01-02T150405.000Z.db.enc --passphrase \"backup-pass\"",
	}
	cmd.AddCommand(
		newBackupRunCommand(a),
		newBackupListCommand(a),
		newBackupRestoreCommand(a),
		newBackupEncryptCommand(a),
		newBackupDecryptCommand(a),
	)
	return cmd
}

// passphrase prefers the flag and falls back to the configured one.
func (a *app) passphrase(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Backup.Passphrase != "" {
		return a.cfg.Backup.Passphrase, nil
	}
	return "", fmt.Errorf("a passphrase is required: pass --passphrase or set %s", passphraseEnv)
}

func newBackupRunCommand(a *app) *cobra.Command {
	var (
		passphrase string
		cleanup    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Take a backup now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.passphrase(passphrase)
			if err != nil {
				return err
			}

			_, conn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			m := backup.NewManager(a.cfg.Backup, conn, a.logger.With("component", "backup"))
			b, err := m.RunNow(cmd.Context(), pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "backup uploaded: %s (%d bytes)\n", b.Key, b.Size)

			if cleanup {
				n, err := m.Cleanup(cmd.Context(), a.cfg.Backup.Retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %d old backups\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Encryption passphrase (or "+passphraseEnv+")")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Also delete backups older than the retention period")
	return cmd
}

func newBackupListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := backup.NewManager(a.cfg.Backup, nil, a.logger.With("component", "backup"))
			backups, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, backups)
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tCREATED")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Key, b.Size, b.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print backups as JSON")
	return cmd
}

func newBackupRestoreCommand(a *app) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "restore <key>",
		Short: "Replace the database with a stored backup",
		Long:  "Replace the database with a stored backup. Stop any running server first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.passphrase(passphrase)
			if err != nil {
				return err
			}

			m := backup.NewManager(a.cfg.Backup, nil, a.logger.With("component", "backup"))
			if err := m.Restore(cmd.Context(), args[0], pw, a.cfg.DBPath); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "restored %s into %s\n", args[0], a.cfg.DBPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Encryption passphrase (or "+passphraseEnv+")")
	return cmd
}

func newBackupEncryptCommand(a *app) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "encrypt <in> <out>",
		Short: "Encrypt a file in the backup format",
		Long:  "Encrypt a file in the backup format, e.g. a database copied by hand, so it can be stored alongside uploaded backups.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.passphrase(passphrase)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[1]); err == nil {
				return fmt.Errorf("%s already exists", args[1])
			}
			if err := backup.EncryptFile(args[0], args[1], pw); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "encrypted %s to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Encryption passphrase (or "+passphraseEnv+")")
	return cmd
}

func newBackupDecryptCommand(a *app) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "decrypt <in> <out>",
		Short: "Decrypt a downloaded backup file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.passphrase(passphrase)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[1]); err == nil {
				return fmt.Errorf("%s already exists", args[1])
			}
			if err := backup.DecryptFile(args[0], args[1], pw); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "decrypted %s to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Encryption passphrase (or "+passphraseEnv+")")
	return cmd
}
