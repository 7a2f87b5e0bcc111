package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/avc/internal/slug"
)

var slugCmd = &cobra.Command{
	Use:   "slug <url>",
	Short: "Print the cleaned URL and slug for a URL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "URL:  %s\n", slug.CleanURL(args[0]))
		fmt.Fprintf(out, "Slug: %s\n", slug.Generate(args[0]))
	},
}
