package cmd

import (
	"github.com/crmvault/crmvault/internal/convert"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Convert a spreadsheet to CSV or JSON",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		n, err := convert.File(args[0], args[1], convert.Options{
			Sheet:     mustFlagString(cmd, "sheet", false),
			HeaderRow: mustFlagInt(cmd, "header-row"),
			Format:    mustFlagString(cmd, "format", false),
		})
		if err != nil {
			fatal(log, err)
		}
		log.Info("wrote %s rows to %s", color.GreenString("%d", n), args[1])
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().String("sheet", "", "sheet name, default is the first sheet")
	convertCmd.Flags().Int("header-row", 1, "1-based row holding the column headers")
	convertCmd.Flags().String("format", "", "output format, default is derived from the output extension")
}
