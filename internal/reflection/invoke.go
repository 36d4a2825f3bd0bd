package reflection

import (
	"reflect"
	"runtime/debug"
)

// Panic records a value recovered from a call.
type Panic struct {
	Value any
	Stack []byte
}

// Call invokes fn with args. A panic raised by fn is recovered and returned
// instead of propagating.
func Call(fn reflect.Value, args []reflect.Value) (out []reflect.Value, p *Panic) {
	defer func() {
		if r := recover(); r != nil {
			p = &Panic{Value: r, Stack: debug.Stack()}
			out = nil
		}
	}()

	return fn.Call(args), nil
}

// Arg converts v into an argument of type t. A nil v becomes the zero value.
// ok is false when v is not assignable to t.
func Arg(v any, t reflect.Type) (reflect.Value, bool) {
	if v == nil {
		return reflect.Zero(t), true
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if rv.Type() != t {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out, true
		}
		return rv, true
	}

	if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
		return rv.Convert(t), true
	}

	return reflect.Value{}, false
}

// SetField assigns v to the field at index of the struct pointed to by
// target. ok is false when target is not a pointer to a struct, or the value
// is not assignable to the field.
func SetField(target any, index []int, v any) bool {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return false
	}

	field := rv.Elem().FieldByIndex(index)
	if !field.CanSet() {
		return false
	}

	arg, ok := Arg(v, field.Type())
	if !ok {
		return false
	}

	field.Set(arg)
	return true
}

// FieldByName returns the exported field name of the struct t points to.
func FieldByName(t reflect.Type, name string) (reflect.StructField, bool) {
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}

	f, ok := t.Elem().FieldByName(name)
	if !ok || !f.IsExported() {
		return reflect.StructField{}, false
	}
	return f, true
}

// Method returns the bound method name of instance.
func Method(instance any, name string) (reflect.Value, bool) {
	if instance == nil {
		return reflect.Value{}, false
	}

	m := reflect.ValueOf(instance).MethodByName(name)
	if !m.IsValid() {
		return reflect.Value{}, false
	}
	return m, true
}
