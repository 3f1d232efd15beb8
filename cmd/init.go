package cmd

import (
	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize convoguard configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure convoguard and generates a .convoguard.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
