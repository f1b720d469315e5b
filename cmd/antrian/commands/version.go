package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/antrian"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := antrian.Build()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "antrian %s\n\n", info.Version)

		data := newTableData("Field", "Value")
		for _, f := range info.Fields() {
			data.addRow(f[0], f[1])
		}
		printTable(out, data)
	},
}
