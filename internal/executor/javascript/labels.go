package javascript

import (
	"fmt"

	"github.com/dop251/goja"
)

// LabelInjector sets up every injected-context global except
// $credentials' handles' own shape: one "$<label>" global per
// immediate-or-transitive predecessor holding that predecessor's output
// items, plus $input/$inputAll/$json/$inputItem for the node's own item
// list, all run through the same ValueSanitizer.
type LabelInjector struct {
	sanitizer *ValueSanitizer
}

// NewLabelInjector creates a new label injector.
func NewLabelInjector() *LabelInjector {
	return &LabelInjector{sanitizer: NewValueSanitizer()}
}

// InjectLabels sets one global per entry in vars (sanitized label -> output
// value, typically []map[string]any of that predecessor's items).
func (li *LabelInjector) InjectLabels(vm *goja.Runtime, vars map[string]any) error {
	for name, value := range vars {
		sanitized := li.sanitizer.Sanitize(value)
		if err := vm.Set(name, vm.ToValue(sanitized)); err != nil {
			return fmt.Errorf("failed to set label global %q: %w", name, err)
		}
	}
	return nil
}

// InjectCredentials sets the $credentials global: a plain object mapping
// credential name to its decrypted handle, built by the caller (the code
// node never sees ciphertext or a reference string, only the resolved
// handle).
func (li *LabelInjector) InjectCredentials(vm *goja.Runtime, handles map[string]any) error {
	obj := vm.NewObject()
	for name, handle := range handles {
		if err := obj.Set(name, vm.ToValue(handle)); err != nil {
			return fmt.Errorf("failed to set credential %q: %w", name, err)
		}
	}
	return vm.Set("$credentials", obj)
}

// InjectInput sets the item globals for one node invocation: $input
// and its alias $inputAll hold the node's full ordered item list (each
// element shaped {json, ...}); $json and its alias $inputItem hold the
// first item's json value, or {} when there are no items.
func (li *LabelInjector) InjectInput(vm *goja.Runtime, items []map[string]any) error {
	list := make([]any, len(items))
	for i, item := range items {
		list[i] = li.sanitizer.Sanitize(item)
	}
	if err := vm.Set("$input", vm.ToValue(list)); err != nil {
		return fmt.Errorf("failed to set $input: %w", err)
	}
	if err := vm.Set("$inputAll", vm.ToValue(list)); err != nil {
		return fmt.Errorf("failed to set $inputAll: %w", err)
	}

	firstJSON := map[string]any{}
	if len(items) > 0 {
		if json, ok := items[0]["json"].(map[string]any); ok {
			firstJSON = json
		}
	}
	sanitizedJSON := li.sanitizer.Sanitize(firstJSON)
	if err := vm.Set("$json", vm.ToValue(sanitizedJSON)); err != nil {
		return fmt.Errorf("failed to set $json: %w", err)
	}
	if err := vm.Set("$inputItem", vm.ToValue(sanitizedJSON)); err != nil {
		return fmt.Errorf("failed to set $inputItem: %w", err)
	}
	return nil
}
