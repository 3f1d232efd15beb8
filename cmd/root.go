package cmd

import (
	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "convoguard",
	Short: "Persona orchestration and safety triage for AI sales conversations",
	Long: `Convoguard orchestrates AI sales conversations across multiple personas,
runs every drafted reply through a safety evaluation pipeline, and gives
human staff a triage surface for the alerts it raises.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
