package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/convert"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/importer"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// readIncoming loads records from a CSV, JSON or spreadsheet file.
func readIncoming(path string) ([]datapkg.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return datapkg.LoadCSV(path)
	case ".json":
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var records []datapkg.Record
		if err := json.Unmarshal(buf, &records); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
		return records, nil
	case ".xlsx", ".xls":
		header, rows, err := convert.ReadSheet(path, convert.Options{})
		if err != nil {
			return nil, err
		}
		records := make([]datapkg.Record, 0, len(rows))
		for _, row := range rows {
			record := make(datapkg.Record, len(header))
			for i, key := range header {
				record[key] = datapkg.ParseCSVValue(row[i])
			}
			records = append(records, record)
		}
		return records, nil
	default:
		return nil, errors.Newf("unsupported input format: %s", path)
	}
}

var importCmd = &cobra.Command{
	Use:   "import <entity>",
	Short: "Merge records from a file into a backup package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)

		pkg := loadPackage(cmd, log)
		ent, err := entity.Match(args[0])
		if err != nil {
			fatal(log, err)
		}
		fields := pkg.Fields(ent.Name)
		existing, err := pkg.LoadRecords(ent.Name)
		if err != nil {
			fatal(log, err)
		}

		file := mustFlagString(cmd, "file", true)
		incoming, err := readIncoming(file)
		if err != nil {
			fatal(log, err)
		}

		var keyFields []string
		for _, part := range strings.Split(mustFlagString(cmd, "key", false), ",") {
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

		if !mustFlagBool(cmd, "confirm", false) {
			var confirmed bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewNote().
						Title(fmt.Sprintf("Import %d rows from %s into %s (%d existing records)?", len(incoming), file, ent.Name, len(existing))),
					huh.NewConfirm().
						Title("Continue with the import?").
						Affirmative("Confirm").
						Negative("Cancel").
						Value(&confirmed),
				),
			)
			form.WithTheme(huh.ThemeBase())
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					os.Exit(0)
				}
				fatal(log, err)
			}
			if !confirmed {
				log.Info("cancelled, use --confirm to skip this prompt")
				os.Exit(0)
			}
		}

		writeLog, closeLog := openActionLog(cmd, log)
		defer closeLog()

		stats, merged, _ := importer.Merge(log, incoming, existing, schema.Keys(fields), importer.Options{
			KeyFields:       keyFields,
			OnDuplicate:     importer.DuplicatePolicy(mustFlagString(cmd, "on-duplicate", false)),
			AutoID:          mustFlagBool(cmd, "auto-id", false),
			IncludeNullKeys: mustFlagBool(cmd, "include-null-keys", false),
			Log:             func(entry importer.LogEntry) { writeLog(entry) },
		})

		if mustFlagBool(cmd, "dry-run", false) {
			log.Info("%s %s", color.YellowString("DRY RUN:"), stats)
			return
		}
		if err := pkg.SaveRecords(ent.Name, merged); err != nil {
			fatal(log, err)
		}
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
		log.Info("import finished: %s", color.GreenString("%s", stats))
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("dir", "", "backup package directory")
	importCmd.Flags().String("file", "", "input file (.csv, .json or .xlsx)")
	importCmd.Flags().String("key", "", "comma separated fields that identify duplicates")
	importCmd.Flags().String("on-duplicate", "update", "what to do on a key match: update, skip or error")
	importCmd.Flags().Bool("auto-id", false, "assign ids to rows that have none")
	importCmd.Flags().Bool("include-null-keys", false, "let rows with all-blank keys match each other")
	importCmd.Flags().Bool("dry-run", false, "report what would happen without writing")
	importCmd.Flags().Bool("confirm", false, "skip the confirmation prompt")
	importCmd.Flags().String("log", "", "write a per-row audit log as JSON lines to this file")
}
