package main

import (
	"fmt"

	"modscout/internal/capability"

	"github.com/spf13/cobra"
)

var capabilitiesVerbose bool

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the built-in capability catalog",
	RunE:  runCapabilities,
}

func init() {
	capabilitiesCmd.Flags().BoolVarP(&capabilitiesVerbose, "strategies", "s", false, "List each capability's strategies")
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	specs := capability.Catalog()
	if err := capability.Validate(specs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, sp := range specs {
		writeLine(out, "%s %-9s %-12s %s",
			nameStyle.Render(sp.Name), sp.Phase, sp.Kind,
			mutedStyle.Render(fmt.Sprintf("%d strategies", len(sp.Strategies))))
		if !capabilitiesVerbose {
			continue
		}
		for i, st := range sp.Strategies {
			writeLine(out, "    #%d %s", i+1, st.Desc)
		}
	}
	return nil
}
