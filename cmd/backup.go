package cmd

import (
	"os"

	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup [entity...]",
	Short: "Download schema and records into a local backup package",
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		defer log.Info("👋 Bye")
		ctx := cmd.Context()

		dir := mustFlagString(cmd, "dir", true)
		selected, err := selectEntities(args)
		if err != nil {
			fatal(log, err)
		}
		if selected == nil {
			selected = entity.Registry
		}

		client := newRemote(cmd, log)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fatal(log, err)
		}
		pkg := datapkg.New(dir, mustFlagString(cmd, "name", false))

		for _, ent := range selected {
			elog := log.WithPrefix("[" + ent.Name + "]")
			fields, err := client.FetchFields(ctx, ent)
			if err != nil {
				fatal(elog, err)
			}
			var records []datapkg.Record
			err = client.FetchAll(ctx, ent, func(record datapkg.Record) error {
				records = append(records, record)
				if len(records)%500 == 0 {
					elog.Info("fetched %d records", len(records))
				}
				return nil
			})
			if err != nil {
				fatal(elog, err)
			}
			pkg.SetResource(datapkg.Resource{
				Entity: ent.Name,
				Path:   ent.Name + ".csv",
				Fields: fields,
			})
			if err := pkg.SaveRecords(ent.Name, records); err != nil {
				fatal(elog, err)
			}
			elog.Info("saved %s records", color.GreenString("%d", len(records)))
		}
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
		log.Info("backup written to %s", color.CyanString(dir))
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().String("dir", "", "directory to write the backup package into")
	backupCmd.Flags().String("name", "backup", "package name recorded in the descriptor")
}
