package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danmuck/protoforge/internal/config"
)

const defaultConfigPath = "protoproxy.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "protoproxy: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "protoproxy",
		Short: "Inspecting relay for schema-defined game protocols",
		Long: `protoproxy sits between a game client and its server, decodes every
frame with a compiled protocol schema and follows stage and compression
changes declared by the rules in its config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProxyConfig(configPath)
			if err != nil {
				return err
			}
			svc, err := NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "proxy config file")
	root.AddCommand(initCmd(&configPath))
	return root
}

func initCmd(configPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(*configPath, "proxy", force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *configPath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	return cmd
}
