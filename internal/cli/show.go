package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show stored content",
	Long: `Print the content the profile reads for an item: the requested version,
else the profile's version, else main.`,
	Args: cobra.ExactArgs(1),
	Run:  runShow,
}

var (
	showVersion  string
	showProfile  string
	showMetaOnly bool
)

func init() {
	showCmd.Flags().StringVar(&showVersion, "version", "", "Version timestamp to show")
	showCmd.Flags().StringVar(&showProfile, "profile", envOrDefault("AVC_PROFILE", "local"), "Profile reading the item")
	showCmd.Flags().BoolVar(&showMetaOnly, "metadata", false, "Only print metadata")
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext(cmd)
	defer c.Close()

	view, err := c.Service.GetContent(context.Background(), showProfile, args[0], showVersion)
	if err != nil {
		exitError("%v", err)
	}

	out := cmd.OutOrStdout()
	yellow := color.New(color.FgYellow)

	yellow.Fprintf(out, "version %s\n", view.VersionName)
	fmt.Fprintf(out, "URL:     %s\n", view.URL)
	if m := view.Metadata; m != nil {
		if m.Title != "" {
			fmt.Fprintf(out, "Title:   %s\n", m.Title)
		}
		if m.Author != "" {
			fmt.Fprintf(out, "Author:  %s\n", m.Author)
		}
		if m.PublishedAt != "" {
			fmt.Fprintf(out, "Date:    %s\n", m.PublishedAt)
		}
		fmt.Fprintf(out, "Length:  %d\n", m.Length)
		fmt.Fprintf(out, "Hash:    %s\n", shortHash(m.Hash))
	}
	if showMetaOnly {
		return
	}
	fmt.Fprintf(out, "\n%s\n", view.Content)
}
