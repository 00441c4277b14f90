package cmd

import (
	"github.com/crmvault/crmvault/internal/pkgcheck"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate a backup package's descriptor and data files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		if err := pkgcheck.Descriptor(args[0]); err != nil {
			fatal(log, err)
		}
		log.Info("%s %s is a valid backup package", color.GreenString("OK"), args[0])
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
