// cmd/key.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/relaycache/internal/cachekey"
	"github.com/aceteam-ai/relaycache/internal/params"
)

var (
	keyMethod  string
	keyVersion string
	keyParams  []string
	keyData    string
	keyVerbose bool
)

var keyCmd = &cobra.Command{
	Use:   "key <client> <endpoint>",
	Short: "Print the cache key for a request without sending it",
	Long: `Computes the cache key a request would be stored under. Parameter order does
not matter; client, endpoint, method, version and parameter values do.

Example:
  relaycache key demo predictions --param query=test`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{"config": "skip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parseParams(keyParams, keyData)
		if err != nil {
			return err
		}
		key, err := cachekey.Generate(args[0], args[1], p, strings.ToUpper(keyMethod), keyVersion)
		if err != nil {
			return err
		}
		fmt.Println(key)

		if keyVerbose {
			canonical, err := params.Canonical(p)
			if err != nil {
				return err
			}
			summary, err := params.Summarize(p, params.DefaultSummaryOptions())
			if err != nil {
				return err
			}
			labelColor.Print("Canonical: ")
			fmt.Println(string(canonical))
			labelColor.Print("Summary:   ")
			fmt.Println(summary)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.Flags().StringVar(&keyMethod, "method", "GET", "HTTP method")
	keyCmd.Flags().StringVar(&keyVersion, "api-version", "", "API version path segment")
	keyCmd.Flags().StringArrayVarP(&keyParams, "param", "p", nil, "Request parameter as key=value (repeatable)")
	keyCmd.Flags().StringVar(&keyData, "data", "", "Request parameters as a JSON object")
	keyCmd.Flags().BoolVarP(&keyVerbose, "verbose", "v", false, "Also print the canonical parameters and stored summary")
}
