package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/fnhost/internal/host"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Inspect the functions under the script root",
}

var functionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the functions the host would load",
	Long: `Reads host.json and every function.json under the script root without
starting the host. Disabled functions and functions excluded by the
host.json allow-list are not shown.`,
	RunE: runFunctionsList,
}

func init() {
	rootCmd.AddCommand(functionsCmd)
	functionsCmd.AddCommand(functionsListCmd)
}

func runFunctionsList(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}

	cfg, err := host.LoadHostConfig(s.ScriptRoot)
	if err != nil {
		return err
	}
	timeout, err := cfg.Timeout(s.FunctionTimeout)
	if err != nil {
		return err
	}
	descs, err := host.ReadFunctionMetadata(s.ScriptRoot, cfg, timeout, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := encode(out, descs); ok {
		return err
	}

	if len(descs) == 0 {
		fmt.Fprintf(out, "No functions found under %s\n", s.ScriptRoot)
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Name", "Language", "Script", "Entry point", "Timeout")
	for _, d := range descs {
		script := d.ScriptFile
		if script == "" {
			script = "-"
		}
		entry := d.EntryPoint
		if entry == "" {
			entry = "-"
		}
		table.Append([]string{d.Name, d.Language, script, entry, d.Timeout.String()})
	}
	return table.Render()
}
