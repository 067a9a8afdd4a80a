// cmd/request.go
package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/relaycache/internal/orchestrator"
	"github.com/aceteam-ai/relaycache/internal/provider"
)

var (
	requestMethod      string
	requestVersion     string
	requestParams      []string
	requestData        string
	requestAttributes  string
	requestAttributes2 string
	requestCost        int
	requestTTL         time.Duration
	requestQuiet       bool
)

var requestCmd = &cobra.Command{
	Use:   "request <client> <endpoint>",
	Short: "Send a request through the cache and rate limiter",
	Long: `Sends one request to a configured API client. A live cache entry for the same
client, endpoint, method, version and parameters is returned without contacting
the API; otherwise the call is rate-checked, dispatched and, if the client's
policy allows, stored.

Examples:
  # Cached GET with query parameters
  relaycache request demo predictions --param query=test --param limit=10

  # POST a task array
  relaycache request dataforseo dataforseo_labs/google/keyword_ideas/live \
    --method POST --api-version v3 --data '{"0":{"keywords":["shoes"],"location_code":2840}}'`,
	Args: cobra.ExactArgs(2),
	RunE: runRequest,
}

func runRequest(cmd *cobra.Command, args []string) error {
	params, err := parseParams(requestParams, requestData)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	call := orchestrator.Call{
		Client:      args[0],
		Endpoint:    args[1],
		Method:      requestMethod,
		Version:     requestVersion,
		Params:      params,
		Attributes:  requestAttributes,
		Attributes2: requestAttributes2,
		Cost:        requestCost,
	}
	if call.Version == "" {
		call.Version = a.cfg.Clients[call.Client].Version
	}
	if requestTTL > 0 {
		exp := time.Now().Add(requestTTL)
		call.ExpiresAt = &exp
	}

	res, err := a.orch.Do(ctx, call)
	if err != nil {
		var reqErr *provider.RequestError
		if errors.As(err, &reqErr) {
			badColor.Fprintf(os.Stderr, "HTTP %d from %s\n", reqErr.StatusCode, reqErr.URL)
			if reqErr.APIMessage != "" {
				fmt.Fprintf(os.Stderr, "API message: %s\n", reqErr.APIMessage)
			}
		}
		return err
	}

	if !requestQuiet {
		w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
		labelColor.Fprint(w, "Status:\t")
		statusColor(res.StatusCode).Fprintf(w, "%d\n", res.StatusCode)
		labelColor.Fprint(w, "Source:\t")
		if res.IsCached {
			goodColor.Fprintln(w, "cache")
		} else {
			warnColor.Fprintln(w, "api")
		}
		labelColor.Fprint(w, "URL:\t")
		fmt.Fprintln(w, res.Request.URL)
		labelColor.Fprint(w, "Key:\t")
		fmt.Fprintln(w, res.Key)
		labelColor.Fprint(w, "Size:\t")
		fmt.Fprintf(w, "%d bytes\n", res.Size)
		labelColor.Fprint(w, "Time:\t")
		fmt.Fprintln(w, res.Elapsed.Round(time.Millisecond))
		w.Flush()
		fmt.Fprintln(os.Stderr, "---")
	}

	// Pretty-print JSON if possible
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.Response.Body, "", "  "); err == nil {
		pretty.WriteByte('\n')
		os.Stdout.Write(pretty.Bytes())
	} else {
		os.Stdout.Write(res.Response.Body)
	}
	return nil
}

func statusColor(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return goodColor
	case code >= 400:
		return badColor
	default:
		return warnColor
	}
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVar(&requestMethod, "method", "GET", "HTTP method (GET, POST, PUT, PATCH, DELETE)")
	requestCmd.Flags().StringVar(&requestVersion, "api-version", "", "API version path segment (default from client config)")
	requestCmd.Flags().StringArrayVarP(&requestParams, "param", "p", nil, "Request parameter as key=value (repeatable)")
	requestCmd.Flags().StringVar(&requestData, "data", "", "Request parameters as a JSON object")
	requestCmd.Flags().StringVar(&requestAttributes, "attributes", "", "Free-form tag stored with the response")
	requestCmd.Flags().StringVar(&requestAttributes2, "attributes2", "", "Second free-form tag stored with the response")
	requestCmd.Flags().IntVar(&requestCost, "cost", 0, "Rate limit units charged for this call (default from client policy)")
	requestCmd.Flags().DurationVar(&requestTTL, "ttl", 0, "Expire the cached response after this duration")
	requestCmd.Flags().BoolVarP(&requestQuiet, "quiet", "q", false, "Print only the response body")
}
