// expsub submits experiment campaigns to the batch scheduler, runs single
// tasks on compute nodes and serves the status API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:        "expsub",
	Short:      "expsub orchestrates deep learning experiment campaigns",
	SuggestFor: []string{"expsup", "expsb"},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddCommand(
		newSubmitCommand(),
		newWorkerCommand(),
		newServeCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "expsub failed %v\n", err)
		os.Exit(1)
	}
}
