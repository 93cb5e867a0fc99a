package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calder-labs/pipeline"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition.yaml>",
		Short: "Check a pipeline definition and its transition graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := pipeline.ParseDefinition(data)
			if err != nil {
				return err
			}

			shape := "linear chain"
			if def.Graph != nil {
				shape = "graph"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d stage(s), %s)\n", def.Name, len(def.Stages), shape)
			return nil
		},
	}
}
