package diagnostics

import (
	"path"
	"regexp"
	"strings"
)

// Category names used by the host itself.
const (
	CategoryStructured  = "Structured"
	CategoryHostGeneral = "Host.General"
	CategoryHostStartup = "Host.Startup"
	CategoryFileWatcher = "Host.FileWatcher"
)

var userFunctionCategory = regexp.MustCompile(`^Function\.[^\s]+\.User`)

// FunctionCategory is the system category for one function.
func FunctionCategory(name string) string {
	return "Function." + name
}

// UserCategory is the category carrying a function's own output.
func UserCategory(name string) string {
	return "Function." + name + ".User"
}

// WorkerCategory is the category for a language worker instance.
func WorkerCategory(language, id string) string {
	return "Worker." + language + "." + id
}

// IsUserCategory reports whether category carries user function output.
func IsUserCategory(category string) bool {
	return userFunctionCategory.MatchString(category)
}

// SinkID identifies a sink family.
type SinkID string

const (
	SinkFile       SinkID = "file"
	SinkStructured SinkID = "structured"
)

// LogRoute is the routing decision for one category.
type LogRoute struct {
	Category string
	// FilePath is slash separated and relative to the log root; empty when
	// the category has no file route.
	FilePath   string
	Structured bool
}

// Sinks lists the sink families the category is delivered to.
func (r LogRoute) Sinks() []SinkID {
	var ids []SinkID
	if r.FilePath != "" {
		ids = append(ids, SinkFile)
	}
	if r.Structured {
		ids = append(ids, SinkStructured)
	}
	return ids
}

// Route computes the routing decision for category.
func Route(category string) LogRoute {
	p, _ := FilePath(category)
	return LogRoute{
		Category:   category,
		FilePath:   p,
		Structured: !IsUserCategory(category),
	}
}

// FilePath derives the relative log path for category.
//
//	Structured               -> Structured
//	Worker.<lang>.<id>       -> Worker/<lang>/<id>
//	Function.<name>          -> Function/<name>
//	Function.<name>.User     -> Function/<name>
func FilePath(category string) (string, bool) {
	if category == CategoryStructured {
		return CategoryStructured, true
	}

	parts := strings.Split(category, ".")
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}

	switch parts[0] {
	case "Worker":
		if len(parts) == 3 {
			return path.Join(parts...), true
		}
	case "Function":
		if len(parts) == 2 || (len(parts) == 3 && parts[2] == "User") {
			return path.Join(parts[0], parts[1]), true
		}
	}
	return "", false
}
