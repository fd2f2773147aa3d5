package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danmuck/protoforge/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "protocheck: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "protocheck <schema.toml>",
		Short: "Validate a protocol schema document",
		Long: `protocheck loads a protocol schema, validates it and compiles every
packet codec. On success it prints the packet groups and any id gaps.
With --write the file is rewritten in canonical form.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd.OutOrStdout(), args[0], write)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the file in canonical form")
	return cmd
}
