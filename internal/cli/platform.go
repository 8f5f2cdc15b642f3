package cli

import (
	"github.com/spf13/cobra"

	"github.com/dimuls/jdlib/internal/native"
)

type platformReport struct {
	Platform    string   `json:"platform"`
	Library     string   `json:"library,omitempty"`
	Supported   bool     `json:"supported"`
	CPUFeatures []string `json:"cpu_features"`
	Error       string   `json:"error,omitempty"`
}

func reportPlatform() platformReport {
	r := platformReport{CPUFeatures: native.CPUFeatures()}

	p, err := native.CurrentPlatform()
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Platform = p.String()
	r.Library = p.LibraryPath()

	if err := native.CheckCPU(); err != nil {
		r.Error = err.Error()
		return r
	}
	r.Supported = true
	return r
}

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Show the platform and the packaged native library that would be loaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), reportPlatform())
	},
}

func init() {
	rootCmd.AddCommand(platformCmd)
}
