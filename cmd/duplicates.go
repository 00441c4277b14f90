package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/diff"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <entity>",
	Short: "Find records sharing the same key fields in a backup package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)

		pkg := loadPackage(cmd, log)
		ent, err := entity.Match(args[0])
		if err != nil {
			fatal(log, err)
		}
		fields := pkg.Fields(ent.Name)
		records, err := pkg.LoadRecords(ent.Name)
		if err != nil {
			fatal(log, err)
		}

		var keyFields []string
		for _, part := range strings.Split(mustFlagString(cmd, "key", true), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, err := resolver.ResolveWith(fields, part, chooseField)
			if err != nil {
				fatal(log, err)
			}
			keyFields = append(keyFields, key)
		}
		if len(keyFields) == 0 {
			fatal(log, errors.New("--key must name at least one field"))
		}

		groups := diff.FindDuplicates(records, keyFields, mustFlagBool(cmd, "include-nulls", false))
		for _, group := range groups {
			fmt.Printf("%s %s (%d records)\n", color.YellowString("duplicate"), group.Key, len(group.Records))
			for _, record := range group.Records {
				fmt.Printf("  id=%v\n", record["id"])
			}
		}
		if len(groups) == 0 {
			log.Info("no duplicates found")
		} else {
			log.Info("%s duplicate groups in %d records", color.YellowString("%d", len(groups)), len(records))
		}
	},
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
	duplicatesCmd.Flags().String("dir", "", "backup package directory")
	duplicatesCmd.Flags().String("key", "", "comma separated fields whose values identify a duplicate")
	duplicatesCmd.Flags().Bool("include-nulls", false, "group records whose key fields are all blank")
}
