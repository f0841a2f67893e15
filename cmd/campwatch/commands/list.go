package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered competitor adapters",
	Long: `List the built-in competitors, merged with registry_file when one is
configured. Names are what run --adapter accepts.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOMPANY\tKIND\tCOUNTRY\tCURRENCY\tENTRY URLS")
	for _, name := range reg.Names() {
		entry, _ := reg.Get(name)
		c := entry.Config
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			c.Name, c.Company, c.Kind, c.Country, c.Currency, len(c.EntryURLs))
	}
	return tw.Flush()
}
