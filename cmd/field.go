package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/reconcile"
	"github.com/crmvault/crmvault/internal/resolver"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// placeholderKey is a locally unique key for a field that does not exist
// remotely yet. The store command replaces it with the remote-assigned key.
func placeholderKey() string {
	return "_new_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

func fieldContext(cmd *cobra.Command, name string) (*datapkg.Package, entity.Config, []schema.Field, error) {
	log := newLogger(cmd)
	pkg := loadPackage(cmd, log)
	ent, err := entity.Match(name)
	if err != nil {
		return nil, entity.Config{}, nil, err
	}
	if !ent.HasFields() {
		return nil, entity.Config{}, nil, errors.Newf("entity %s has no custom fields", ent.Name)
	}
	return pkg, ent, pkg.Fields(ent.Name), nil
}

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Inspect and edit the field schema of a backup package",
}

var fieldListCmd = &cobra.Command{
	Use:   "list <entity>",
	Short: "List the fields of an entity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		_, ent, fields, err := fieldContext(cmd, args[0])
		if err != nil {
			fatal(log, err)
		}
		if mustFlagBool(cmd, "remote", false) {
			if fields, err = newRemote(cmd, log).FetchFields(cmd.Context(), ent); err != nil {
				fatal(log, err)
			}
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tTYPE\tEDITABLE\tOPTIONS")
		for _, f := range fields {
			var labels []string
			for _, o := range f.Options {
				labels = append(labels, fmt.Sprintf("%s (%d)", o.Label, o.ID))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", f.Key, f.Name, f.Type, f.Editable, strings.Join(labels, ", "))
		}
		if err := w.Flush(); err != nil {
			fatal(log, err)
		}
		log.Info("%d fields on %s", len(fields), color.CyanString(ent.Name))
	},
}

var fieldAddCmd = &cobra.Command{
	Use:   "add <entity>",
	Short: "Add a field to the local schema",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		pkg, ent, fields, err := fieldContext(cmd, args[0])
		if err != nil {
			fatal(log, err)
		}
		name := mustFlagString(cmd, "name", true)
		fieldType := mustFlagString(cmd, "type", true)

		field := schema.Field{
			Key:      placeholderKey(),
			Name:     name,
			Type:     fieldType,
			Editable: true,
		}
		for i, label := range strings.Split(mustFlagString(cmd, "options", false), ",") {
			if label = strings.TrimSpace(label); label != "" {
				field.Options = append(field.Options, schema.Option{ID: i + 1, Label: label})
			}
		}
		if len(field.Options) > 0 && !field.HasOptions() {
			fatal(log, errors.Newf("--options only applies to enum and set fields, not %s", fieldType))
		}

		pkg.SetFields(ent.Name, append(fields, field))
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
		log.Info("added field %s with key %s, run store to create it remotely", color.GreenString(name), field.Key)
	},
}

var fieldDeleteCmd = &cobra.Command{
	Use:   "delete <entity> <field>",
	Short: "Remove a field from the local schema and its column from the data",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		pkg, ent, fields, err := fieldContext(cmd, args[0])
		if err != nil {
			fatal(log, err)
		}
		remoteDelete := mustFlagBool(cmd, "remote", false)
		if remoteDelete {
			if fields, err = newRemote(cmd, log).FetchFields(cmd.Context(), ent); err != nil {
				fatal(log, err)
			}
		}
		key, err := resolver.ResolveWith(fields, args[1], chooseField)
		if err != nil {
			fatal(log, err)
		}
		field, ok := schema.FindKey(fields, key)
		if !ok {
			fatal(log, errors.Newf("unknown field %q", args[1]))
		}

		if !mustFlagBool(cmd, "confirm", false) {
			where := "from " + ent.Name
			if remoteDelete {
				where = "remotely from " + ent.Name
			}
			decision, err := confirmPrompt(fmt.Sprintf("Delete field %s (%s) and its data %s?", field.Name, field.Key, where))
			if err != nil {
				fatal(log, err)
			}
			if decision != reconcile.Yes {
				log.Info("cancelled")
				return
			}
		}

		if remoteDelete {
			if err := newRemote(cmd, log).DeleteField(cmd.Context(), ent, field.ID); err != nil {
				fatal(log, err)
			}
			log.Info("deleted remote field %s", color.RedString(field.Name))
			return
		}

		kept := make([]schema.Field, 0, len(fields)-1)
		for _, f := range fields {
			if f.Key != key {
				kept = append(kept, f)
			}
		}
		records, err := pkg.LoadRecords(ent.Name)
		if err != nil {
			fatal(log, err)
		}
		datapkg.RemoveColumn(records, key)
		pkg.SetFields(ent.Name, kept)
		if err := pkg.SaveRecords(ent.Name, records); err != nil {
			fatal(log, err)
		}
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
		log.Info("deleted field %s, use store --delete-extra-fields to remove it remotely", color.RedString(field.Name))
	},
}

var fieldRenameCmd = &cobra.Command{
	Use:   "rename <entity> <field> <new-name>",
	Short: "Change a field's display name",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		pkg, ent, fields, err := fieldContext(cmd, args[0])
		if err != nil {
			fatal(log, err)
		}
		key, err := resolver.ResolveWith(fields, args[1], chooseField)
		if err != nil {
			fatal(log, err)
		}
		renamed := false
		for i := range fields {
			if fields[i].Key == key {
				log.Info("renaming %s to %s", color.CyanString(fields[i].Name), color.GreenString(args[2]))
				fields[i].Name = args[2]
				renamed = true
			}
		}
		if !renamed {
			fatal(log, errors.Newf("unknown field %q", args[1]))
		}
		pkg.SetFields(ent.Name, fields)
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
	},
}

var fieldCopyCmd = &cobra.Command{
	Use:   "copy <entity> <source> <target>",
	Short: "Copy values from one field into another, converting to the target type",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		pkg, ent, fields, err := fieldContext(cmd, args[0])
		if err != nil {
			fatal(log, err)
		}
		srcKey, err := resolver.ResolveWith(fields, args[1], chooseField)
		if err != nil {
			fatal(log, err)
		}
		dstKey, err := resolver.ResolveWith(fields, args[2], chooseField)
		if err != nil {
			fatal(log, err)
		}
		src, ok := schema.FindKey(fields, srcKey)
		if !ok {
			fatal(log, errors.Newf("unknown field %q", args[1]))
		}
		dstIdx := -1
		for i := range fields {
			if fields[i].Key == dstKey {
				dstIdx = i
			}
		}
		if dstIdx < 0 {
			fatal(log, errors.Newf("unknown field %q", args[2]))
		}
		dst := fields[dstIdx]

		records, err := pkg.LoadRecords(ent.Name)
		if err != nil {
			fatal(log, err)
		}

		// Enum and set targets first grow options for every distinct source
		// value they do not know yet.
		if dst.HasOptions() {
			values := schema.CollectUniqueValues(records, srcKey, dst.Type == "set")
			missing := schema.MissingOptions(dst, values)
			nextID := 0
			for _, o := range dst.Options {
				if o.ID > nextID {
					nextID = o.ID
				}
			}
			for _, label := range missing {
				nextID++
				dst.Options = append(dst.Options, schema.Option{ID: nextID, Label: label})
			}
			if len(missing) > 0 {
				log.Info("added %d options to %s: %s", len(missing), dst.Name, strings.Join(missing, ", "))
			}
			if unused := schema.UnusedOptions(dst, values); len(unused) > 0 {
				log.Info("options on %s with no matching value: %s", dst.Name, strings.Join(unused, ", "))
			}
			fields[dstIdx] = dst
		}

		dryRun := mustFlagBool(cmd, "dry-run", false)
		var copied, failed int
		for _, record := range records {
			raw := datapkg.FormatCSVValue(record[srcKey])
			if raw == "" {
				continue
			}
			value, err := schema.TransformValue(dst, raw)
			if err != nil {
				log.Warn("record %v: %s", record["id"], err)
				failed++
				continue
			}
			if dryRun {
				log.Info("record %v: %s = %s", record["id"], dstKey, value)
			} else {
				record[dstKey] = value
			}
			copied++
		}
		if dryRun {
			log.Info("%s would copy %s -> %s for %d records (%d failed)",
				color.YellowString("DRY RUN:"), src.Name, dst.Name, copied, failed)
			return
		}
		pkg.SetFields(ent.Name, fields)
		if err := pkg.SaveRecords(ent.Name, records); err != nil {
			fatal(log, err)
		}
		if err := pkg.Save(); err != nil {
			fatal(log, err)
		}
		log.Info("copied %s -> %s for %s records (%d failed)", src.Name, dst.Name, color.GreenString("%d", copied), failed)
	},
}

func init() {
	rootCmd.AddCommand(fieldCmd)
	fieldCmd.AddCommand(fieldListCmd, fieldAddCmd, fieldDeleteCmd, fieldRenameCmd, fieldCopyCmd)
	for _, c := range []*cobra.Command{fieldListCmd, fieldAddCmd, fieldDeleteCmd, fieldRenameCmd, fieldCopyCmd} {
		c.Flags().String("dir", "", "backup package directory")
	}
	fieldListCmd.Flags().Bool("remote", false, "list the remote schema instead of the local one")
	fieldDeleteCmd.Flags().Bool("remote", false, "delete the field remotely instead of locally")
	fieldAddCmd.Flags().String("name", "", "display name of the new field")
	fieldAddCmd.Flags().String("type", "varchar", "field type (varchar, text, int, double, date, enum, set...)")
	fieldAddCmd.Flags().String("options", "", "comma separated option labels for enum and set fields")
	fieldDeleteCmd.Flags().Bool("confirm", false, "skip the confirmation prompt")
	fieldCopyCmd.Flags().Bool("dry-run", false, "show converted values without writing")
}
