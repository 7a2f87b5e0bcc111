package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <slug>",
	Short: "List stored versions of an item",
	Long:  `List every stored version of an item, newest first. The version held as main is marked.`,
	Args:  cobra.ExactArgs(1),
	Run:   runVersions,
}

var versionsOneline bool

func init() {
	versionsCmd.Flags().BoolVar(&versionsOneline, "oneline", false, "Show each version on a single line")
}

func runVersions(cmd *cobra.Command, args []string) {
	c := initContext(cmd)
	defer c.Close()

	ctx := context.Background()
	versions, err := c.Service.ListVersions(ctx, args[0])
	if err != nil {
		exitError("%v", err)
	}

	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No versions yet")
		return
	}

	var mainTS string
	if main, err := c.Service.GetMetadata(ctx, args[0], ""); err == nil {
		mainTS = main.Timestamp
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for _, v := range versions {
		if versionsOneline {
			yellow.Fprintf(out, "%s ", v.Timestamp)
			if v.Timestamp == mainTS {
				cyan.Fprint(out, "(main) ")
			}
			fmt.Fprintf(out, "%d %s\n", v.Length, shortHash(v.Hash))
			continue
		}

		yellow.Fprintf(out, "version %s", v.Timestamp)
		if v.Timestamp == mainTS {
			cyan.Fprint(out, " (main)")
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Length: %d\n", v.Length)
		fmt.Fprintf(out, "Hash:   %s\n", v.Hash)
		if v.Title != "" {
			fmt.Fprintf(out, "\n    %s\n", v.Title)
		}
		fmt.Fprintln(out)
	}
}
