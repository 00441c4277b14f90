package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/reconcile"
	"github.com/crmvault/crmvault/internal/tracker"
	"github.com/fatih/color"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/spf13/cobra"
)

// openMappings opens the package's mapping database. A dry run never creates
// the file: an existing database is opened so resume checks still see prior
// mappings (the engine's overlay keeps simulated writes in memory), a missing
// one leaves the engine on its in-memory store.
func openMappings(dir string, dryRun bool, log logger.Logger, logPath string) (reconcile.MappingStore, func(), error) {
	if dryRun {
		if _, err := os.Stat(tracker.FilenameFromDir(dir)); err != nil {
			return nil, func() {}, nil
		}
	}
	track, err := tracker.New(tracker.Config{
		Logger:  log,
		Dir:     dir,
		LogPath: logPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return track, func() { track.Close() }, nil
}

var storeCmd = &cobra.Command{
	Use:     "store [entity...]",
	Aliases: []string{"restore"},
	Short:   "Reconcile a local backup package against the remote CRM",
	Long: `Pushes the local package to the remote CRM: custom fields are created or
renamed to match the package, then records are created or updated in
dependency order. Remote-assigned ids are tracked in a mapping database next
to the package so an interrupted run can resume with --resume.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		defer log.Info("👋 Bye")
		ctx := cmd.Context()

		pkg := loadPackage(cmd, log)
		selected, err := selectEntities(args)
		if err != nil {
			fatal(log, err)
		}

		dryRun := mustFlagBool(cmd, "dry-run", false)
		if dryRun {
			log.Info("%s no changes will be made", color.YellowString("DRY RUN:"))
		}

		client := newRemote(cmd, log)
		mappings, closeMappings, err := openMappings(pkg.Dir(), dryRun, log, mustFlagString(cmd, "mapping-log", false))
		if err != nil {
			fatal(log, err)
		}
		defer closeMappings()

		writeLog, closeLog := openActionLog(cmd, log)
		defer closeLog()

		var confirm reconcile.Confirmer
		if !mustFlagBool(cmd, "confirm", false) {
			confirm = confirmPrompt
		}

		engine := reconcile.New(log, client, pkg, mappings, confirm, reconcile.Options{
			Entities:           selected,
			DryRun:             dryRun,
			Resume:             mustFlagBool(cmd, "resume", false),
			DeleteExtraFields:  mustFlagBool(cmd, "delete-extra-fields", false),
			DeleteExtraRecords: mustFlagBool(cmd, "delete-extra-records", false),
			SkipUnchanged:      mustFlagBool(cmd, "skip-unchanged", false),
			NoRewriteLocal:     mustFlagBool(cmd, "no-rewrite", false),
			Force:              mustFlagBool(cmd, "confirm", false),
			Log:                func(action reconcile.Action) { writeLog(action) },
		})

		report, err := engine.Run(ctx)
		if report != nil {
			for _, er := range report.Entities {
				if !er.Fields.Empty() {
					log.Info("%s fields: %s", color.CyanString(er.Entity), er.Fields)
				}
				log.Info("%s records: %s", color.CyanString(er.Entity), er.Records)
			}
		}
		if err != nil {
			if errors.Is(err, reconcile.ErrAborted) {
				log.Warn("aborted, partial progress is recorded in the mapping database")
				return
			}
			fatal(log, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.Flags().String("dir", "", "backup package directory")
	storeCmd.Flags().Bool("dry-run", false, "simulate without changing anything")
	storeCmd.Flags().Bool("resume", false, "skip records already synced in a previous run")
	storeCmd.Flags().Bool("skip-unchanged", false, "compare before updating and skip equal records")
	storeCmd.Flags().Bool("delete-extra-fields", false, "delete remote custom fields not present locally")
	storeCmd.Flags().Bool("delete-extra-records", false, "delete remote records not present locally")
	storeCmd.Flags().Bool("no-rewrite", false, "do not rewrite local files to remote ids after the run")
	storeCmd.Flags().Bool("confirm", false, "skip confirmation prompts")
	storeCmd.Flags().String("log", "", "write every action as JSON lines to this file")
	storeCmd.Flags().String("mapping-log", "", "mirror id mappings as JSON lines to this file")
}
