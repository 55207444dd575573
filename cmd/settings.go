package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and change runtime settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Settings.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		e, err := env.Settings.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(e)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Change one setting; the value is JSON (for example 25, true or '[\"wrestler\"]')",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		raw := json.RawMessage(args[1])
		if !json.Valid(raw) {
			// Bare words are taken as strings.
			quoted, _ := json.Marshal(args[1])
			raw = quoted
		}
		if err := env.Settings.Set(cmd.Context(), args[0], raw); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], raw)
		return nil
	},
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default rows for settings that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Settings.InitDefaults(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized %d setting(s)\n", n)
		return nil
	},
}

var settingsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export effective settings as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 0 {
			return env.Settings.Export(cmd.Context(), cmd.OutOrStdout())
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		return env.Settings.Export(cmd.Context(), f)
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import settings from a YAML file; nothing is written if any value is invalid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		n, err := env.Settings.Import(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d setting(s)\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsSetCmd, settingsInitCmd, settingsExportCmd, settingsImportCmd)
	rootCmd.AddCommand(settingsCmd, migrateCmd)
}
