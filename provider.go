package bundi

import (
	"fmt"
	"reflect"

	"go.uber.org/dig"
)

// Provider is an explicit provider declaration. Exactly one of UseClass,
// UseValue, UseFactory or UseExisting must be set.
//
// Example:
//
//	bundi.Providers(
//	    NewUsersService,                                          // class shorthand
//	    bundi.Provider{Provide: "API_KEY", UseValue: "secret"},   // value
//	    bundi.Provider{Provide: CacheToken, UseFactory: NewCache, // factory
//	        Inject: []any{bundi.TypeOf[*Config]()}},
//	    bundi.Provider{Provide: bundi.TypeOf[Store](), UseExisting: bundi.TypeOf[*MemoryStore]()},
//	)
type Provider struct {
	// Provide is the token the provider is registered under. For UseClass it
	// defaults to the constructor's result type.
	Provide Token

	// UseClass is a constructor function.
	UseClass any

	// UseValue is a literal instance.
	UseValue any

	// UseFactory is a function whose parameters are resolved from Inject
	// (or from the parameter types when Inject is empty).
	UseFactory any

	// Inject lists the factory dependencies: tokens, OptionalToken or
	// ForwardReference values.
	Inject []any

	// UseExisting aliases another token.
	UseExisting Token

	// Scope overrides the scope. DefaultScope keeps the constructor's
	// Injectable scope, falling back to Singleton.
	Scope Scope
}

// Strategy is the construction strategy of an InstanceWrapper.
type Strategy int

const (
	ClassStrategy Strategy = iota
	ValueStrategy
	FactoryStrategy
	AliasStrategy
)

func (s Strategy) String() string {
	switch s {
	case ClassStrategy:
		return "class"
	case ValueStrategy:
		return "value"
	case FactoryStrategy:
		return "factory"
	case AliasStrategy:
		return "alias"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// shape reports which strategy a provider declares.
func (p Provider) shape() (Strategy, error) {
	set := 0
	strategy := ValueStrategy
	if p.UseClass != nil {
		set++
		strategy = ClassStrategy
	}
	if p.UseFactory != nil {
		set++
		strategy = FactoryStrategy
	}
	if p.UseExisting != nil {
		set++
		strategy = AliasStrategy
	}
	if p.UseValue != nil {
		set++
		strategy = ValueStrategy
	}

	switch set {
	case 0:
		return 0, fmt.Errorf("provider must declare one of UseClass, UseValue, UseFactory or UseExisting")
	case 1:
		return strategy, nil
	default:
		return 0, fmt.Errorf("provider declares more than one of UseClass, UseValue, UseFactory and UseExisting")
	}
}

// Value is shorthand for a value provider.
func Value(token Token, value any) Provider {
	return Provider{Provide: token, UseValue: value}
}

// Factory is shorthand for a factory provider.
func Factory(token Token, factory any, inject ...any) Provider {
	return Provider{Provide: token, UseFactory: factory, Inject: inject}
}

// Alias is shorthand for a UseExisting provider.
func Alias(token Token, existing Token) Provider {
	return Provider{Provide: token, UseExisting: existing}
}

// FromDig exposes a value of type T held by an existing dig container as a
// factory provider registered under TypeOf[T](). The dig container is invoked
// lazily, once per instance the provider's scope calls for.
//
// Example:
//
//	c := dig.New()
//	c.Provide(NewLegacyStore)
//
//	bundi.Providers(bundi.FromDig[*LegacyStore](c))
func FromDig[T any](c *dig.Container, opts ...dig.InvokeOption) Provider {
	target := TypeOf[T]()
	return Provider{
		Provide: target,
		UseFactory: func() (T, error) {
			var out T
			fnType := reflect.FuncOf([]reflect.Type{target}, nil, false)
			fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
				if v, ok := args[0].Interface().(T); ok {
					out = v
				}
				return nil
			})
			if err := c.Invoke(fn.Interface(), opts...); err != nil {
				return out, fmt.Errorf("dig: %w", err)
			}
			return out, nil
		},
	}
}
