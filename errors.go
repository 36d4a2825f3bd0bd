package bundi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================

var (
	// Token errors.
	ErrTokenNil = errors.New("token cannot be nil")

	// Module errors.
	ErrModuleNil = errors.New("module cannot be nil")

	// Application errors.
	ErrApplicationClosed = errors.New("application has been closed")
	ErrNotInitialized    = errors.New("application has not been initialized")

	// Registration errors.
	ErrConstructorNil = errors.New("constructor cannot be nil")
)

var (
	_ error = ScopeError{}
	_ error = CircularDependencyError{}
	_ error = UnknownDependencyError{}
	_ error = UnknownElementError{}
	_ error = InvalidProviderError{}
	_ error = UnsafeInjectionError{}
	_ error = InvalidScopeError{}
	_ error = ConstructorInvocationError{}
	_ error = ConstructorPanicError{}
	_ error = TypeMismatchError{}
	_ error = ModuleError{}
	_ error = ForwardRefError{}
	_ error = LifecycleHookError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// ScopeError indicates an invalid scope value.
type ScopeError struct {
	Value any
}

func (e ScopeError) Error() string {
	return fmt.Sprintf("invalid provider scope: %v", e.Value)
}

// CircularDependencyError is returned when a provider is reached again while it
// is still being constructed. Chain lists the providers in construction order,
// ending with the repeated provider.
type CircularDependencyError struct {
	Chain []string
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected: ")
	b.WriteString(strings.Join(e.Chain, " -> "))
	b.WriteString("\n\nTo resolve this:\n")
	b.WriteString("  • Inject one side through bundi.Ref[T] or bundi.ForwardRef\n")
	b.WriteString("  • Move the shared logic into a third provider\n")
	return b.String()
}

// UnknownDependencyError indicates that a dependency token is not visible from
// the module hosting the dependent provider.
type UnknownDependencyError struct {
	Token     Token
	Dependent string
	Index     int    // -1 for property dependencies
	Property  string // set for property dependencies
	Module    string
}

func (e UnknownDependencyError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("cannot resolve dependency %q of %s", tokenName(e.Token), e.Dependent))
	if e.Property != "" {
		b.WriteString(fmt.Sprintf(" (property %s)", e.Property))
	} else if e.Index >= 0 {
		b.WriteString(fmt.Sprintf(" (argument at index [%d])", e.Index))
	}
	b.WriteString(fmt.Sprintf(" in module %q: provider not resolvable", e.Module))
	b.WriteString("\n\nMake sure the provider is declared in the module, exported by an imported module, or exported by a global module.")
	return b.String()
}

// UnknownElementError indicates that a token is not registered in any module.
type UnknownElementError struct {
	Token Token
}

func (e UnknownElementError) Error() string {
	return fmt.Sprintf("could not find %q element (this provider does not exist in the current context)", tokenName(e.Token))
}

// InvalidProviderError indicates a provider or module declaration with an
// unsupported shape.
type InvalidProviderError struct {
	Module   string
	Provider string
	Reason   string
}

func (e InvalidProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("invalid provider in module %q: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("invalid provider %s in module %q: %s", e.Provider, e.Module, e.Reason)
}

// UnsafeInjectionError is returned when a property injection targets a key
// that is never a legitimate injection point.
type UnsafeInjectionError struct {
	Provider string
	Key      string
}

func (e UnsafeInjectionError) Error() string {
	return fmt.Sprintf("unsafe injection: property %q of %s cannot be used as an injection target", e.Key, e.Provider)
}

// InvalidScopeError is returned when a non-singleton provider is requested
// through a singleton-only lookup.
type InvalidScopeError struct {
	Token Token
	Scope Scope
}

func (e InvalidScopeError) Error() string {
	return fmt.Sprintf("%s is marked as a %s-scoped provider; use Resolve instead of Get to obtain an instance", tokenName(e.Token), strings.ToLower(e.Scope.String()))
}

// ConstructorInvocationError wraps an error returned by a constructor or
// factory.
type ConstructorInvocationError struct {
	Provider    string
	Constructor reflect.Type
	Cause       error
}

func (e ConstructorInvocationError) Error() string {
	return fmt.Sprintf("failed to construct %s with %s: %v", e.Provider, formatType(e.Constructor), e.Cause)
}

func (e ConstructorInvocationError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a constructor panicked during invocation.
// It captures the panic value and stack trace for debugging.
type ConstructorPanicError struct {
	Provider    string
	Constructor reflect.Type
	Panic       any
	Stack       []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("constructor %s of %s panicked: %v\n", formatType(e.Constructor), e.Provider, e.Panic))

	b.WriteString("\nConstructors should be pure dependency wiring - avoid operations that can panic.\n")
	b.WriteString("Work that can fail belongs in an OnModuleInit hook, not in the constructor.\n")

	if len(e.Stack) > 0 {
		b.WriteString("\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// TypeMismatchError indicates a resolved value cannot be used where it was
// injected.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// ModuleError wraps errors raised while scanning a module.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// ForwardRefError is returned by Ref.Get when the referenced provider cannot
// be produced.
type ForwardRefError struct {
	Token  Token
	Reason string
}

func (e ForwardRefError) Error() string {
	return fmt.Sprintf("forward reference to %s: %s", tokenName(e.Token), e.Reason)
}

// LifecycleHookError wraps an error returned by a lifecycle hook.
type LifecycleHookError struct {
	Hook     string
	Instance string
	Cause    error
}

func (e LifecycleHookError) Error() string {
	return fmt.Sprintf("%s hook of %s failed: %v", e.Hook, e.Instance, e.Cause)
}

func (e LifecycleHookError) Unwrap() error {
	return e.Cause
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
