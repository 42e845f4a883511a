package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// completionCmd wraps Cobra's built-in shell completion generator.
// Running `gridfetch completion bash` prints a script the user can source.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for gridfetch.

Saved request names and stored document names complete from the local
database (fetch --request, request show, store get, export, ...).

  # bash
  source <(gridfetch completion bash)

  # zsh
  source <(gridfetch completion zsh)

  # fish
  gridfetch completion fish | source`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		default:
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
	},
}

// completeRequestNames lists saved request definitions matching the prefix.
// Store errors yield no suggestions.
func completeRequestNames(_ *cobra.Command, _ []string, prefix string) ([]string, cobra.ShellCompDirective) {
	deps, err := buildDeps()
	if err != nil || deps.RequireStore() != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer deps.Close()

	defs, err := deps.Store.ListRequests()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, d := range defs {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, d.Name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeDocumentNames completes the first positional argument with the
// names of stored documents.
func completeDocumentNames(_ *cobra.Command, args []string, prefix string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	deps, err := buildDeps()
	if err != nil || deps.RequireStore() != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer deps.Close()

	docs, err := deps.Store.ListDocuments()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, d := range docs {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, d.Name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)

	requestShowCmd.ValidArgsFunction = func(c *cobra.Command, args []string, p string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return completeRequestNames(c, args, p)
	}
	requestDeleteCmd.ValidArgsFunction = requestShowCmd.ValidArgsFunction

	for _, c := range []*cobra.Command{storeGetCmd, storeDeleteCmd, storeRawCmd, exportCmd} {
		c.ValidArgsFunction = completeDocumentNames
	}
}
