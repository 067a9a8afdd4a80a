// cmd/completion.go
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/relaycache/internal/config"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for RelayCache.

Bash:
  $ source <(relaycache completion bash)

Zsh:
  $ relaycache completion zsh > "${fpath[1]}/_relaycache"

Fish:
  $ relaycache completion fish > ~/.config/fish/completions/relaycache.fish

PowerShell:
  PS> relaycache completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Annotations:           map[string]string{"config": "skip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

// completeClients offers configured client names for the first argument.
func completeClients(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cfg.ClientNames(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)
	requestCmd.ValidArgsFunction = completeClients
	keyCmd.ValidArgsFunction = completeClients
	ratelimitClearCmd.ValidArgsFunction = completeClients
	cacheClearCmd.ValidArgsFunction = completeClients
	cachePendingCmd.ValidArgsFunction = completeClients
}
