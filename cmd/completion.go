package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script",
	Long: `Generate shell completion script for prism.

To load completions:

Bash:
  $ source <(prism completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ prism completion bash > /etc/bash_completion.d/prism
  # macOS:
  $ prism completion bash > $(brew --prefix)/etc/bash_completion.d/prism

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ prism completion zsh > "${fpath[1]}/_prism"

  # For oh-my-zsh users:
  $ mkdir -p ~/.oh-my-zsh/custom/plugins/prism
  $ prism completion zsh > ~/.oh-my-zsh/custom/plugins/prism/_prism
  # Then add 'prism' to your plugins array in ~/.zshrc:
  # plugins=(... prism)

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ prism completion fish | source

  # To load completions for each session, execute once:
  $ prism completion fish > ~/.config/fish/completions/prism.fish

PowerShell:
  PS> prism completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> prism completion powershell > prism.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
