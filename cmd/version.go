package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/redisclient/internal/meta"
)

var (
	versionJSON bool
)

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print the full build info as JSON")
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		if !versionJSON {
			fmt.Fprintln(cmd.OutOrStdout(), info)
			return nil
		}

		out, err := info.JSON()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
