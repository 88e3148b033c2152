package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
)

// FunctionConfigFile marks a directory under the script root as a function.
const FunctionConfigFile = "function.json"

type functionConfig struct {
	Name       string                   `json:"name"`
	Language   string                   `json:"language"`
	ScriptFile string                   `json:"scriptFile"`
	EntryPoint string                   `json:"entryPoint"`
	Disabled   bool                     `json:"disabled"`
	Timeout    string                   `json:"timeout"`
	Bindings   []map[string]interface{} `json:"bindings"`
}

// default script names tried, in order, when function.json names none
var scriptCandidates = []string{"run", "index", "main"}

// ReadFunctionMetadata discovers the functions under root. Disabled functions
// and functions excluded by the host allow-list are left out.
func ReadFunctionMetadata(root string, cfg HostConfig, defaultTimeout time.Duration, logger *logging.Logger) ([]invoke.Descriptor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read script root: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []invoke.Descriptor
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		desc, ok, err := readFunction(dir, defaultTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if desc.Disabled {
			logger.Info(fmt.Sprintf("Function '%s' is disabled", desc.Name))
			continue
		}
		if !cfg.Allows(desc.Name) {
			logger.Debug(fmt.Sprintf("Function '%s' is not in the host functions list", desc.Name))
			continue
		}
		out = append(out, desc)
	}

	if len(out) > 0 {
		lines := make([]string, len(out))
		for i, d := range out {
			lines[i] = "Host.Functions." + d.Name
		}
		logger.Info("Found the following functions:\n" + strings.Join(lines, "\n"))
	}
	return out, nil
}

func readFunction(dir string, defaultTimeout time.Duration) (invoke.Descriptor, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, FunctionConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return invoke.Descriptor{}, false, nil
	}
	if err != nil {
		return invoke.Descriptor{}, false, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var fc functionConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
		return invoke.Descriptor{}, false, fmt.Errorf("invalid %s in %s: %w", FunctionConfigFile, dir, err)
	}

	desc := invoke.Descriptor{
		Name:       fc.Name,
		Directory:  dir,
		Language:   strings.ToLower(fc.Language),
		ScriptFile: fc.ScriptFile,
		EntryPoint: fc.EntryPoint,
		Disabled:   fc.Disabled,
		Bindings:   fc.Bindings,
	}
	if desc.Name == "" {
		desc.Name = filepath.Base(dir)
	}

	if desc.Language != invoke.LanguageGo && desc.ScriptFile == "" {
		desc.ScriptFile = findScript(dir)
	}
	if desc.Language == "" {
		desc.Language = invoke.LanguageFor(desc.ScriptFile)
	}
	if desc.Language == "" {
		if desc.ScriptFile != "" {
			return desc, false, fmt.Errorf("function '%s': cannot infer language of %q", desc.Name, desc.ScriptFile)
		}
		desc.Language = invoke.LanguageGo
	}

	desc.Timeout = defaultTimeout
	if fc.Timeout != "" {
		d, err := ParseTimeout(fc.Timeout)
		if err != nil {
			return desc, false, fmt.Errorf("function '%s': %w", desc.Name, err)
		}
		desc.Timeout = d
	}
	return desc, true, nil
}

func findScript(dir string) string {
	for _, base := range scriptCandidates {
		matches, _ := filepath.Glob(filepath.Join(dir, base+".*"))
		sort.Strings(matches)
		for _, m := range matches {
			if invoke.LanguageFor(m) != "" {
				return filepath.Base(m)
			}
		}
	}
	return ""
}
