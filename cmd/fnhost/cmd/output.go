package cmd

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// encode writes v as JSON or YAML depending on the output flag. It reports
// false when a table should be rendered instead.
func encode(w io.Writer, v interface{}) (bool, error) {
	switch {
	case IsJSONOutput():
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case IsYAMLOutput():
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return true, encoder.Encode(v)
	}
	return false, nil
}
