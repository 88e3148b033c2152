package invoke

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/fnhost/pkg/logging"
)

// Descriptor is the identity and metadata of one function.
type Descriptor struct {
	Name       string                   `json:"name" yaml:"name"`
	Directory  string                   `json:"directory" yaml:"directory"`
	Language   string                   `json:"language" yaml:"language"`
	ScriptFile string                   `json:"scriptFile,omitempty" yaml:"scriptFile,omitempty"`
	EntryPoint string                   `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
	Timeout    time.Duration            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Disabled   bool                     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Bindings   []map[string]interface{} `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// LanguageGo selects in-process handlers from a Registry.
const LanguageGo = "go"

// LanguageFor infers a language from a script file extension.
func LanguageFor(scriptFile string) string {
	switch strings.ToLower(filepath.Ext(scriptFile)) {
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "node"
	case ".sh":
		return "bash"
	case ".ps1":
		return "powershell"
	default:
		return ""
	}
}

// Arguments are the inputs of one call.
type Arguments map[string]interface{}

// ExecutionContext is what user code sees of its invocation.
type ExecutionContext struct {
	InvocationID      string
	FunctionName      string
	FunctionDirectory string
	Logger            *logging.Logger // Function.<name>.User
}

// Executor runs prepared user code. Implementations should return promptly
// once ctx is done.
type Executor interface {
	Execute(ctx context.Context, ec ExecutionContext, args Arguments) error
}

// HandlerFunc adapts a function to Executor.
type HandlerFunc func(ctx context.Context, ec ExecutionContext, args Arguments) error

func (f HandlerFunc) Execute(ctx context.Context, ec ExecutionContext, args Arguments) error {
	return f(ctx, ec, args)
}

// Loader prepares an Executor for a function. It is called again after the
// function's files change.
type Loader interface {
	Load(desc Descriptor) (Executor, error)
}

// Registry holds in-process handlers keyed by entry point.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to an entry point name.
func (r *Registry) Register(entryPoint string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[entryPoint] = fn
}

// Names lists registered entry points.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}

// Load resolves desc.EntryPoint, falling back to the function name.
func (r *Registry) Load(desc Descriptor) (Executor, error) {
	key := desc.EntryPoint
	if key == "" {
		key = desc.Name
	}
	r.mu.RLock()
	fn, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for entry point %q of function %q", key, desc.Name)
	}
	return fn, nil
}

// Dispatcher picks a Loader by language.
type Dispatcher struct {
	ByLanguage map[string]Loader
	Default    Loader
}

func (d *Dispatcher) Load(desc Descriptor) (Executor, error) {
	if l, ok := d.ByLanguage[desc.Language]; ok {
		return l.Load(desc)
	}
	if d.Default != nil {
		return d.Default.Load(desc)
	}
	return nil, fmt.Errorf("unsupported language %q for function %q", desc.Language, desc.Name)
}
