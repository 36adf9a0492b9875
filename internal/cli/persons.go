package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewPersonsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persons",
		Short: "List registered persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			src, closeFn, err := deps.Open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			persons, err := src.ListPersons(ctx)
			if err != nil {
				return err
			}
			sort.Slice(persons, func(i, j int) bool { return persons[i].Name < persons[j].Name })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tIMAGES")
			for _, p := range persons {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", p.ID, p.Name, p.ImageCount)
			}
			return tw.Flush()
		},
	}

	return cmd
}
