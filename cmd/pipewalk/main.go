// pipewalk is a terminal host for pipeline definitions: it validates YAML
// pipeline documents and steps through them interactively, rendering the
// navigation header and the current stage's parameters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipewalk",
		Short:         "Walk stage-graph pipeline definitions",
		Long:          "pipewalk loads a YAML pipeline definition and drives its stage graph:\nvalidate checks the document and its transition graph, walk steps through\nthe stages interactively with parameter editing and branch selection.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCommand())
	root.AddCommand(newWalkCommand())
	return root
}
