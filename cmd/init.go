package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcus/brewlog/internal/output"
	"github.com/marcus/brewlog/internal/store"
	"github.com/marcus/brewlog/internal/syncconfig"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the local brewlog cache",
	Long:    `Creates the .brewlog directory, the SQLite cache, and the config dir.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(filepath.Join(baseDir, ".brewlog")); err == nil {
			output.Warning(".brewlog/ already exists")
			return nil
		}

		st, err := store.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize cache: %v", err)
			return err
		}
		defer st.Close()

		cfgDir, err := syncconfig.DefaultDir()
		if err != nil {
			output.Error("failed to create config dir: %v", err)
			return err
		}

		fmt.Println("INITIALIZED .brewlog/")
		output.Subtle("cache:  %s", st.BaseDir())
		output.Subtle("config: %s", cfgDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
