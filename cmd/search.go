package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/expr"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// chooseField prompts for one of several fields matching an ambiguous
// identifier.
func chooseField(identifier string, candidates []schema.Field) (schema.Field, error) {
	options := make([]huh.Option[int], len(candidates))
	for i, f := range candidates {
		options[i] = huh.NewOption(fmt.Sprintf("%s (%s)", f.Name, f.Key), i)
	}
	var picked int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("%q matches multiple fields", identifier)).
				Options(options...).
				Value(&picked),
		),
	)
	form.WithTheme(huh.ThemeBase())
	if err := form.Run(); err != nil {
		return schema.Field{}, err
	}
	return candidates[picked], nil
}

// resolveColumns maps a comma-separated list of identifiers to field keys.
func resolveColumns(fields []schema.Field, list string) ([]string, error) {
	if list == "" {
		return nil, nil
	}
	var keys []string
	for _, part := range strings.Split(list, ",") {
		key, err := resolver.ResolveWith(fields, strings.TrimSpace(part), chooseField)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// filterRecords compiles the rewritten filter and returns matching records.
// Values are coerced to their declared field types first, so a filter can
// compare an int column numerically even though CSV cells load as strings.
func filterRecords(records []datapkg.Record, fields []schema.Field, expression string) ([]datapkg.Record, error) {
	if expression == "" {
		return records, nil
	}
	rewritten, err := expr.Rewrite(fields, expression, chooseField)
	if err != nil {
		return nil, err
	}
	if err := expr.Validate(rewritten, schema.Keys(fields), expr.Filter); err != nil {
		return nil, err
	}
	program, err := expr.Compile(rewritten, expr.Filter)
	if err != nil {
		return nil, err
	}
	lookup := schema.OptionLookup(fields)
	var matched []datapkg.Record
	for _, record := range records {
		input := expr.PreprocessRecord(schema.CoerceRecord(record, fields), lookup)
		ok, err := program.EvalBool(input)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// displayValue renders a cell, expanding option ids to "label (id)".
func displayValue(fields []schema.Field, key string, v any) string {
	raw := datapkg.FormatCSVValue(v)
	if f, ok := schema.FindKey(fields, key); ok && f.HasOptions() {
		return schema.FormatOptionValue(f, raw)
	}
	return raw
}

func outputRecords(records []datapkg.Record, fields []schema.Field, columns []string, format string) error {
	if columns == nil {
		columns = datapkg.Columns(records, schema.Keys(fields))
	}
	switch format {
	case "json":
		out := make([]map[string]any, 0, len(records))
		for _, record := range records {
			row := make(map[string]any, len(columns))
			for _, key := range columns {
				row[key] = record[key]
			}
			out = append(out, row)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		if err := w.Write(columns); err != nil {
			return err
		}
		for _, record := range records {
			row := make([]string, len(columns))
			for i, key := range columns {
				row[i] = datapkg.FormatCSVValue(record[key])
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(columns, "\t"))
		for _, record := range records {
			row := make([]string, len(columns))
			for i, key := range columns {
				row[i] = displayValue(fields, key, record[key])
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return w.Flush()
	}
}

var searchCmd = &cobra.Command{
	Use:   "search <entity>",
	Short: "Filter records in a backup package with an expression",
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

		matched, err := filterRecords(records, fields, mustFlagString(cmd, "filter", false))
		if err != nil {
			fatal(log, err)
		}
		columns, err := resolveColumns(fields, mustFlagString(cmd, "fields", false))
		if err != nil {
			fatal(log, err)
		}
		excluded, err := resolveColumns(fields, mustFlagString(cmd, "exclude", false))
		if err != nil {
			fatal(log, err)
		}
		if len(excluded) > 0 {
			if columns == nil {
				columns = datapkg.Columns(matched, schema.Keys(fields))
			}
			skip := make(map[string]bool, len(excluded))
			for _, key := range excluded {
				skip[key] = true
			}
			kept := columns[:0]
			for _, key := range columns {
				if !skip[key] {
					kept = append(kept, key)
				}
			}
			columns = kept
		}

		if err := outputRecords(matched, fields, columns, mustFlagString(cmd, "format", false)); err != nil {
			fatal(log, err)
		}
		log.Info("%s of %d records matched", color.GreenString("%d", len(matched)), len(records))
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().String("dir", "", "backup package directory")
	searchCmd.Flags().String("filter", "", "filter expression, field names or keys allowed")
	searchCmd.Flags().String("fields", "", "comma separated list of columns to output")
	searchCmd.Flags().String("exclude", "", "comma separated list of columns to drop from the output")
	searchCmd.Flags().String("format", "table", "output format: table, json or csv")
}
