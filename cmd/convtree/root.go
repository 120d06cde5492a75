package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaSui01/convtree/config"
)

// configEnv 未传 --config 时读取的环境变量
const configEnv = "CONVTREE_CONFIG"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "convtree",
		Short: "Generate branching synthetic conversation datasets",
		Long: `convtree grows conversation trees from (intent, domain) seeds. A user
simulator and an assistant take turns, a moderator proposes sub-intents, and
every terminal branch is written as a transcript with token accounting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to config file (YAML), defaults to $"+configEnv)

	root.AddCommand(
		newGenerateCommand(),
		newBatchCommand(),
		newHealthCommand(),
		newVersionCommand(),
	)
	return root
}

// loadConfig 按 --config / CONVTREE_CONFIG 加载并校验配置
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(configEnv)
	}
	cfg, err := config.NewLoader().
		WithConfigPath(path).
		WithEnvPrefix(config.DefaultEnvPrefix).
		Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "convtree %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
