package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	httpcmd "github.com/Alijeyrad/tabib_backend/cmd/http"
	systemcmd "github.com/Alijeyrad/tabib_backend/cmd/system"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tabib",
	Short: "Tabib clinic management backend.",
	Long: `Tabib runs the front desk, consulting rooms, lab and cash desk of a single
clinic: patient registration, queued visits, prescriptions, lab work, remote
consult review and an AI diagnostic assistant, behind one HTTP API.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	// Attach top-level command trees.
	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
}
