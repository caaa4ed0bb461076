package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// outputResult writes result to the command's stdout in the selected format.
func (a *app) outputResult(cmd *cobra.Command, result CLIResult) error {
	if a.flagFormat == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(cmd *cobra.Command, err error) error {
	a.errorHandled = true
	if a.flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: cmd.Name(), Error: err.Error()})
	return err
}

func countOf(n int) *int { return &n }
