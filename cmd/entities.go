package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/crmvault/crmvault/internal/entity"
	"github.com/spf13/cobra"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entity types crmvault knows about",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENDPOINT\tFIELDS\tWRITABLE")
		for _, ent := range entity.Registry {
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", ent.Name, ent.Endpoint, ent.HasFields(), !ent.ReadOnly)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
}
