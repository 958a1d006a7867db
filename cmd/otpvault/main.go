package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/org/otpvault/internal/audit"
	"github.com/org/otpvault/internal/otp"
	"github.com/org/otpvault/internal/provider"
	"github.com/org/otpvault/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:   "otpvault",
	Short: "Local one-time-password manager",
	Long:  "otpvault stores TOTP/HOTP secrets in a passphrase-encrypted local file and generates live codes from them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
	},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(configCmd())
}

// journal returns the activity journal next to the settings file. Entries
// carry operation metadata only, never secret material.
func journal() *audit.Logger {
	return audit.NewLogger(filepath.Join(configDir(), "activity.log"), log.Logger)
}

// openSession prompts for the master passphrase and unlocks the store.
func openSession() (*vault.Session, error) {
	passphrase, err := readPassword("Passphrase: ")
	if err != nil {
		return nil, err
	}
	defer wipe(passphrase)
	return vault.Open(cfg.StorePath, passphrase)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := readPasswordWithConfirm("Passphrase: ", "Confirm passphrase: ")
			if err != nil {
				return err
			}
			defer wipe(passphrase)

			session, err := vault.Create(cfg.StorePath, passphrase)
			if err != nil {
				return err
			}
			defer session.Close()

			journal().Record(audit.Entry{Operation: "init"})
			printSuccess("Store created at " + cfg.StorePath)
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <otpauth-uri>",
		Short: "Add an account from an otpauth:// URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			summary, err := session.AddURI(args[0])
			if err != nil {
				return err
			}
			if err := session.Save(); err != nil {
				return err
			}
			journal().Record(audit.Entry{Operation: "add", AccountID: summary.ID})
			printSuccess("Added " + summary.Label + " (" + summary.ID + ")")
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			asURI, _ := cmd.Flags().GetBool("uri")

			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if asURI {
				for _, summary := range session.ListAccounts() {
					acc, err := session.Account(summary.ID)
					if err != nil {
						return err
					}
					fmt.Println(otp.FormatURI(acc))
				}
				return nil
			}
			printAccountTable(session.ListAccounts())
			return nil
		},
	}
	cmd.Flags().Bool("uri", false, "Print accounts as otpauth:// URIs (includes secrets)")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <issuer> [label]",
		Short: "Print the current code for matching accounts",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			advance, _ := cmd.Flags().GetBool("advance")

			label := ""
			if len(args) > 1 {
				label = args[1]
			}

			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			matches, err := session.Find(args[0], label)
			if err != nil {
				return err
			}

			now := time.Now()
			for _, m := range matches {
				// A consumed HOTP code is only shown once its counter bump is
				// on disk; a crash mid-command wastes a code, never replays one.
				if advance && m.Kind == "hotp" {
					code, err := session.ConsumeCode(m.ID, now)
					if err != nil {
						return err
					}
					journal().Record(audit.Entry{Operation: "advance", AccountID: m.ID})
					printCode(m, code, 0)
					continue
				}

				code, remaining, err := session.CurrentCode(m.ID, now)
				if err != nil {
					return err
				}
				printCode(m, code, remaining)
			}
			return nil
		},
	}
	cmd.Flags().Bool("advance", false, "Consume the code of matching HOTP accounts")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <account-id>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Remove(args[0]); err != nil {
				return err
			}
			if err := session.Save(); err != nil {
				return err
			}
			journal().Record(audit.Entry{Operation: "remove", AccountID: args[0]})
			printSuccess("Removed " + args[0])
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <provider> <file>",
		Short: "Import accounts from another application's backup",
		Long:  "Supported providers: " + fmt.Sprint(provider.IDs()),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")

			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			bundle, err := session.Import(args[0], data, []byte(password))
			if err != nil {
				return fmt.Errorf("importing %s from %s: %w", args[0], filepath.Base(args[1]), err)
			}
			for _, warning := range bundle.Warnings {
				log.Warn().Str("provider", args[0]).Msg(warning)
			}

			count, err := session.MergeAndSave(bundle)
			if err != nil {
				bundle.Wipe()
				return err
			}
			journal().Record(audit.Entry{Operation: "import", Provider: args[0], Count: count})
			printSuccess(fmt.Sprintf("Imported %d account(s) from %s", count, filepath.Base(args[1])))
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Password of the backup file, if protected")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <provider> [file]",
		Short: "Export accounts to another application's backup format",
		Long:  "Supported providers: " + fmt.Sprint(provider.IDs()),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")

			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			data, name, err := session.Export(args[0], []byte(password))
			if err != nil {
				return err
			}
			if len(args) > 1 {
				name = args[1]
			}
			if err := os.WriteFile(name, data, 0o600); err != nil {
				return err
			}
			journal().Record(audit.Entry{Operation: "export", Provider: args[0]})
			printSuccess("Exported to " + name)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Password to protect the exported file")
	return cmd
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent vault operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := journal().Tail(limit)
			if err != nil {
				return err
			}
			printActivity(entries)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	return cmd
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
