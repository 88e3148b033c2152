package cmd

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/fnhost/internal/diagnostics"
)

type routeView struct {
	Category string   `json:"category" yaml:"category"`
	FilePath string   `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Sinks    []string `json:"sinks" yaml:"sinks"`
}

var routeCmd = &cobra.Command{
	Use:     "route <category>...",
	Short:   "Show where log output for a category is delivered",
	Example: `  fnhost route Function.Hello Function.Hello.User Worker.node.42 Host.General`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		views := make([]routeView, 0, len(args))
		for _, category := range args {
			r := diagnostics.Route(category)
			v := routeView{Category: r.Category, FilePath: r.FilePath, Sinks: []string{}}
			for _, id := range r.Sinks() {
				v.Sinks = append(v.Sinks, string(id))
			}
			views = append(views, v)
		}

		out := cmd.OutOrStdout()
		if ok, err := encode(out, views); ok {
			return err
		}

		table := tablewriter.NewWriter(out)
		table.Header("Category", "File path", "Sinks")
		for _, v := range views {
			path := v.FilePath
			if path == "" {
				path = "-"
			}
			sinks := strings.Join(v.Sinks, ",")
			if sinks == "" {
				sinks = "none"
			}
			table.Append([]string{v.Category, path, sinks})
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
}
