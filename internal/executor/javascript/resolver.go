package javascript

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ModuleSource is one resolvable CommonJS module: a name and its source
// text ("a require-equivalent module resolution function rooted at
// the organization's installed-packages directory").
type ModuleSource struct {
	Name string
	Source string
}

// PackageSource looks up an organization's installed package by name,
// backing require() inside the sandbox. workflow.Repository.GetPackage
// satisfies this through a thin adapter in the executor package, keeping
// this package free of a dependency on the workflow package.
type PackageSource interface {
	GetPackage(ctx context.Context, organizationID, name string) (*ModuleSource, error)
}

// ModuleResolver implements require(name) against an organization's
// installed packages. Each module's source is wrapped in the standard
// CommonJS (module, exports, require) closure, compiled once, and cached
// for the lifetime of the resolver — one resolver per script execution, so
// a module required more than once within the same run is compiled and
// evaluated only once, and nothing about the cache survives across runs
// ("does not share mutable globals between executions").
type ModuleResolver struct {
	source PackageSource
	organizationID string

	mu sync.Mutex
	compiled map[string]*goja.Program
	resolved map[string]goja.Value
}

// NewModuleResolver creates a resolver scoped to one organization's
// installed packages.
func NewModuleResolver(source PackageSource, organizationID string) *ModuleResolver {
	return &ModuleResolver{
		source: source,
		organizationID: organizationID,
		compiled: map[string]*goja.Program{},
		resolved: map[string]goja.Value{},
	}
}

// Install sets the require global on vm, resolving every call through this
// resolver's organization-scoped package source.
func (m *ModuleResolver) Install(ctx context.Context, vm *goja.Runtime) error {
	return vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		exports, err := m.resolve(ctx, vm, name)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return exports
	})
}

func (m *ModuleResolver) resolve(ctx context.Context, vm *goja.Runtime, name string) (goja.Value, error) {
	m.mu.Lock()
	if cached, ok := m.resolved[name]; ok {
		m.mu.Unlock()
		return cached, nil
	}
	prog, ok := m.compiled[name]
	m.mu.Unlock()

	if !ok {
		mod, err := m.source.GetPackage(ctx, m.organizationID, name)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve module %q: %w", name, err)
		}
		wrapped := "(function(module, exports, require) {\n" + mod.Source + "\n})"
		compiled, err := goja.Compile(name, wrapped, false)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", name, err)
		}
		m.mu.Lock()
		m.compiled[name] = compiled
		prog = compiled
		m.mu.Unlock()
	}

	wrapperVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	wrapperFn, ok := goja.AssertFunction(wrapperVal)
	if !ok {
		return nil, fmt.Errorf("module %q: did not compile to a callable wrapper", name)
	}

	module := vm.NewObject()
	exportsObj := vm.NewObject()
	if err := module.Set("exports", exportsObj); err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	requireFn := vm.Get("require")

	if _, err := wrapperFn(goja.Undefined(), module, exportsObj, requireFn); err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}

	exports := module.Get("exports")
	m.mu.Lock()
	m.resolved[name] = exports
	m.mu.Unlock()
	return exports, nil
}
