package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sfs/forecast-engine/api/rest/client"
	"sfs/forecast-engine/internal/jsonutil"
)

var (
	reportServer string
	reportPath   string
	reportAPIKey string
)

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Fetch a job report from a server",
	Long: `Fetch the report of a job from a running server and print it as
JSON. A JSONPath expression narrows the output to the matched values.`,
	Example: `  forecast-engine report 6f1b-... --server http://localhost:8080

  # Just the accuracy headline
  forecast-engine report 6f1b-... --path '$.perf.accuracy'`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportServer, "server", "http://localhost:8080", "server base URL")
	reportCmd.Flags().StringVar(&reportPath, "path", "", "JSONPath filter, e.g. $.perf.accuracy")
	reportCmd.Flags().StringVar(&reportAPIKey, "api-key", "", "API key for the server")
}

func runReport(cmd *cobra.Command, args []string) error {
	var opts []client.Option
	if reportAPIKey != "" {
		opts = append(opts, client.WithAPIKey(reportAPIKey))
	}
	cl := client.New(normalizeMasterURL(reportServer), opts...)

	body, err := cl.GetReport(context.Background(), args[0], reportPath)
	if err != nil {
		return err
	}

	var doc any
	if err := jsonutil.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decoding report: %w", err)
	}
	pretty, err := jsonutil.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Println(string(pretty))
	return nil
}
