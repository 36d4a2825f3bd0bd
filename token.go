package bundi

import (
	"fmt"
	"reflect"
)

// Token identifies a dependency. A token is a reflect.Type (the type produced
// by a constructor, see TypeOf), a string, or a *Symbol. Any other comparable
// value is accepted and compared with ==.
type Token = any

// Symbol is a unique token compared by identity. Two symbols created with the
// same description are distinct tokens.
type Symbol struct {
	description string
}

// NewSymbol creates a new unique symbol token.
//
// Example:
//
//	var CacheToken = bundi.NewSymbol("cache")
//
//	bundi.Provider{Provide: CacheToken, UseValue: cache}
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

// String returns the symbol description.
func (s *Symbol) String() string {
	return "Symbol(" + s.description + ")"
}

// TypeOf returns the class token for T.
//
//	bundi.TypeOf[*UsersService]()
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// OptionalToken marks a dependency that resolves to the zero value when no
// provider for Token is visible.
type OptionalToken struct {
	Token Token
}

// Optional marks token as an optional dependency in an inject list.
func Optional(token Token) OptionalToken {
	return OptionalToken{Token: token}
}

// ForwardReference defers evaluation of a token or module until it is needed.
// It breaks declaration-order and circular references between package-level
// module variables and between providers.
type ForwardReference struct {
	fn func() Token
}

// ForwardRef wraps fn so the token (or module) it returns is evaluated lazily.
//
//	bundi.Imports(bundi.ForwardRef(func() bundi.Token { return UsersModule }))
func ForwardRef(fn func() Token) ForwardReference {
	return ForwardReference{fn: fn}
}

// Unwrap evaluates the reference.
func (f ForwardReference) Unwrap() Token {
	if f.fn == nil {
		return nil
	}

	return f.fn()
}

// validateToken checks that a token can be used as a map key.
func validateToken(token Token) error {
	if token == nil {
		return ErrTokenNil
	}

	if !reflect.TypeOf(token).Comparable() {
		return fmt.Errorf("token of type %T is not comparable", token)
	}

	return nil
}

// tokenName returns a printable name for a token.
func tokenName(token Token) string {
	switch t := token.(type) {
	case nil:
		return "<nil>"
	case reflect.Type:
		return formatType(t)
	case string:
		return t
	case *ModuleDef:
		return t.name
	case *DynamicModule:
		if t.Module != nil {
			return t.Module.name
		}
		return "DynamicModule"
	case ForwardReference:
		return "ForwardRef(" + tokenName(t.Unwrap()) + ")"
	case OptionalToken:
		return tokenName(t.Token)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
