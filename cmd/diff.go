package cmd

import (
	"fmt"
	"strings"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/diff"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <dir-a> <dir-b> [entity...]",
	Short: "Compare the schema and records of two backup packages",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)

		pkgA, err := datapkg.Load(args[0])
		if err != nil {
			fatal(log, err)
		}
		pkgB, err := datapkg.Load(args[1])
		if err != nil {
			fatal(log, err)
		}
		selected, err := selectEntities(args[2:])
		if err != nil {
			fatal(log, err)
		}
		if selected == nil {
			selected = entity.Registry
		}

		keyField := mustFlagString(cmd, "key", false)
		var exclude []string
		for _, part := range strings.Split(mustFlagString(cmd, "exclude", false), ",") {
			if part = strings.TrimSpace(part); part != "" {
				exclude = append(exclude, part)
			}
		}

		total := 0
		for _, ent := range selected {
			if _, ok := pkgA.Resource(ent.Name); !ok {
				continue
			}
			if _, ok := pkgB.Resource(ent.Name); !ok {
				continue
			}
			fieldsA := pkgA.Fields(ent.Name)
			for _, change := range diff.Fields(fieldsA, pkgB.Fields(ent.Name)) {
				fmt.Printf("%s field %s\n", color.CyanString(ent.Name), change)
				total++
			}

			recordsA, err := pkgA.LoadRecords(ent.Name)
			if err != nil {
				fatal(log, err)
			}
			recordsB, err := pkgB.LoadRecords(ent.Name)
			if err != nil {
				fatal(log, err)
			}
			key := keyField
			if key != "id" {
				if key, err = resolver.ResolveWith(fieldsA, key, chooseField); err != nil {
					fatal(log, err)
				}
			}
			for _, change := range diff.Records(recordsA, recordsB, key, exclude) {
				switch change.Kind {
				case "added":
					fmt.Printf("%s record %s only in %s\n", color.CyanString(ent.Name), change.Key, args[1])
				case "removed":
					fmt.Printf("%s record %s only in %s\n", color.CyanString(ent.Name), change.Key, args[0])
				default:
					for field, values := range change.Fields {
						fmt.Printf("%s record %s: %s %q -> %q\n", color.CyanString(ent.Name), change.Key, field, values[0], values[1])
					}
				}
				total++
			}
		}
		if total == 0 {
			log.Info("packages are identical")
		} else {
			log.Info("%s differences", color.YellowString("%d", total))
		}
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().String("key", "id", "field identifying matching records across packages")
	diffCmd.Flags().String("exclude", "", "comma separated fields to ignore when comparing records")
}
