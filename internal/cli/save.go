package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/avc/internal/models"
	"github.com/kilupskalvis/avc/internal/service"
)

var saveCmd = &cobra.Command{
	Use:   "save <url>",
	Short: "Extract and store the content of a saved page",
	Long: `Extract readable content from the page's HTML and store it.

The result is one of:
  UPDATED_MAIN    the extraction is the longest so far and is now main
  STORED_VERSION  kept as a version, main is unchanged
  SKIPPED         identical content is already stored

Examples:
  avc save https://example.com/post --html post.html
  curl -s https://example.com/post | avc save https://example.com/post --html -`,
	Args: cobra.ExactArgs(1),
	Run:  runSave,
}

var (
	saveHTMLFile     string
	saveProfile      string
	saveSkipMetadata bool
)

func init() {
	saveCmd.Flags().StringVar(&saveHTMLFile, "html", "", "HTML file to extract from, - for stdin")
	saveCmd.Flags().StringVar(&saveProfile, "profile", envOrDefault("AVC_PROFILE", "local"), "Profile saving the item")
	saveCmd.Flags().BoolVar(&saveSkipMetadata, "skip-metadata", false, "Keep the profile's stored metadata")
	saveCmd.MarkFlagRequired("html")
}

func runSave(cmd *cobra.Command, args []string) {
	html, err := readHTML(cmd.InOrStdin(), saveHTMLFile)
	if err != nil {
		exitError("failed to read HTML: %v", err)
	}

	c := initContext(cmd)
	defer c.Close()

	res, err := c.Service.SaveContent(context.Background(), &service.SaveRequest{
		ProfileID:              saveProfile,
		URL:                    args[0],
		HTML:                   html,
		SkipMetadataExtraction: saveSkipMetadata,
	})
	if err != nil {
		exitError("%v", err)
	}

	out := cmd.OutOrStdout()
	statusColor(res.Status).Fprintf(out, "%s", res.Status)
	fmt.Fprintf(out, " %s\n", res.Message)
	fmt.Fprintf(out, "Slug:    %s\n", res.Slug)
	if res.VersionName != "" {
		fmt.Fprintf(out, "Version: %s\n", res.VersionName)
	}
}

func readHTML(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func statusColor(s models.UploadStatus) *color.Color {
	switch s {
	case models.UploadStatusUpdatedMain:
		return color.New(color.FgGreen, color.Bold)
	case models.UploadStatusStoredVersion:
		return color.New(color.FgYellow)
	case models.UploadStatusSkipped:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
