package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/expr"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// assignment is one parsed and resolved --set clause.
type assignment struct {
	key     string
	name    string
	program *expr.Program
}

func parseAssignments(fields []schema.Field, clauses []string) ([]assignment, error) {
	var assignments []assignment
	for _, clause := range clauses {
		target, expression, ok := expr.SplitAssignment(clause)
		if !ok {
			return nil, errors.Newf("not an assignment: %q (want field = expression)", clause)
		}
		key, err := resolver.ResolveWith(fields, target, chooseField)
		if err != nil {
			return nil, err
		}
		field, ok := schema.FindKey(fields, key)
		if !ok {
			return nil, errors.Newf("unknown field %q", target)
		}
		rewritten, err := expr.Rewrite(fields, expression, chooseField)
		if err != nil {
			return nil, err
		}
		// fail the whole batch up front, before any record is touched
		if err := expr.Validate(rewritten, schema.Keys(fields), expr.Transform); err != nil {
			return nil, errors.Wrapf(err, "invalid expression %q", expression)
		}
		program, err := expr.Compile(rewritten, expr.Transform)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment{key: key, name: field.Name, program: program})
	}
	return assignments, nil
}

var updateCmd = &cobra.Command{
	Use:   "update <entity>",
	Short: "Apply transform expressions to matching records in a backup package",
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

		clauses, err := cmd.Flags().GetStringArray("set")
		if err != nil || len(clauses) == 0 {
			fatal(log, errors.New("at least one --set \"field = expression\" is required"))
		}
		assignments, err := parseAssignments(fields, clauses)
		if err != nil {
			fatal(log, err)
		}
		for _, a := range assignments {
			log.Info("updating %s (%s)", color.CyanString(a.name), a.key)
		}

		matched, err := filterRecords(records, fields, mustFlagString(cmd, "filter", false))
		if err != nil {
			fatal(log, err)
		}

		dryRun := mustFlagBool(cmd, "dry-run", false)
		lookup := schema.OptionLookup(fields)
		var changed int
		for _, record := range matched {
			input := expr.PreprocessRecord(schema.CoerceRecord(record, fields), lookup)
			touched := false
			for _, a := range assignments {
				value, err := a.program.Eval(input)
				if err != nil {
					fatal(log, errors.Wrapf(err, "record %v", record["id"]))
				}
				if s, ok := value.(string); ok {
					if f, ok := schema.FindKey(fields, a.key); ok {
						if coerced, err := schema.TransformValue(f, s); err == nil {
							value = coerced
						}
					}
				}
				if datapkg.NormalizeValue(record[a.key]) != datapkg.NormalizeValue(value) {
					touched = true
				}
				if dryRun {
					log.Info("record %v: %s = %v", record["id"], a.key, value)
				} else {
					record[a.key] = value
				}
			}
			if touched {
				changed++
			}
		}

		if dryRun {
			log.Info("%s %d of %d records would change", color.YellowString("DRY RUN:"), changed, len(records))
			return
		}
		if err := pkg.SaveRecords(ent.Name, records); err != nil {
			fatal(log, err)
		}
		log.Info("updated %s of %d records", color.GreenString("%d", changed), len(records))
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().String("dir", "", "backup package directory")
	updateCmd.Flags().String("filter", "", "only update records matching this expression")
	updateCmd.Flags().StringArray("set", nil, "assignment to apply, e.g. \"status = 'Active'\" (repeatable)")
	updateCmd.Flags().Bool("dry-run", false, "show what would change without writing")
}
