package reflection

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	errType     = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// ErrNilFunc is returned when a nil function is analyzed.
var ErrNilFunc = errors.New("function cannot be nil")

// Analyzer performs reflection-based analysis of constructors, factories and
// handler methods. Signatures are cached by function type.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*FuncInfo
}

// FuncInfo describes the signature of a function.
type FuncInfo struct {
	Type   reflect.Type
	Value  reflect.Value
	Params []ParamInfo

	// Result is the type of the produced value, nil when the function
	// returns nothing or only an error.
	Result reflect.Type

	// HasError reports whether the last result is an error.
	HasError bool
}

// ParamInfo describes one function parameter.
type ParamInfo struct {
	Index     int
	Type      reflect.Type
	IsContext bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{cache: make(map[reflect.Type]*FuncInfo)}
}

// Analyze inspects fn, which must be a function returning (), (T), (error)
// or (T, error).
func (a *Analyzer) Analyze(fn any) (*FuncInfo, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}

	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %T", fn)
	}
	if val.IsNil() {
		return nil, ErrNilFunc
	}

	typ := val.Type()

	a.mu.RLock()
	cached, ok := a.cache[typ]
	a.mu.RUnlock()
	if ok {
		// closures share a code pointer, so only the signature is cached
		info := *cached
		info.Value = val
		return &info, nil
	}

	info, err := AnalyzeValue(val)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[typ] = info
	a.mu.Unlock()

	return info, nil
}

// AnalyzeValue inspects a function value without caching. It is used for
// bound methods, whose code pointer is shared by every receiver.
func AnalyzeValue(val reflect.Value) (*FuncInfo, error) {
	typ := val.Type()
	if typ.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %s", typ)
	}
	if typ.IsVariadic() {
		return nil, fmt.Errorf("variadic function %s is not supported", typ)
	}

	info := &FuncInfo{
		Type:   typ,
		Value:  val,
		Params: make([]ParamInfo, typ.NumIn()),
	}

	for i := range typ.NumIn() {
		pt := typ.In(i)
		info.Params[i] = ParamInfo{
			Index:     i,
			Type:      pt,
			IsContext: pt == contextType,
		}
	}

	switch typ.NumOut() {
	case 0:
	case 1:
		if out := typ.Out(0); out == errType {
			info.HasError = true
		} else {
			info.Result = out
		}
	case 2:
		if typ.Out(1) != errType {
			return nil, fmt.Errorf("second result of %s must be error", typ)
		}
		if typ.Out(0) == errType {
			return nil, fmt.Errorf("first result of %s must not be error", typ)
		}
		info.Result = typ.Out(0)
		info.HasError = true
	default:
		return nil, fmt.Errorf("function %s returns too many values", typ)
	}

	return info, nil
}

// Results splits the values returned by a call of info into the produced
// value and the returned error.
func (info *FuncInfo) Results(out []reflect.Value) (any, error) {
	var err error
	if info.HasError && len(out) > 0 {
		if last := out[len(out)-1]; !last.IsNil() {
			err, _ = last.Interface().(error)
		}
	}

	if info.Result == nil || len(out) == 0 {
		return nil, err
	}

	v := out[0]
	if isNilable(v.Kind()) && v.IsNil() {
		return nil, err
	}
	return v.Interface(), err
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// ========================================
// Field tags
// ========================================

// FieldInfo describes a struct field tagged for property injection.
type FieldInfo struct {
	Name     string
	Index    []int
	Type     reflect.Type
	Key      string // inject:"key"; empty means the field type is the token
	Optional bool
}

// InjectFields returns the fields of struct type t (or *t) tagged with
// `inject`. Unexported tagged fields are reported as an error since they
// cannot be assigned.
func InjectFields(t reflect.Type) ([]FieldInfo, error) {
	if t == nil {
		return nil, nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil
	}

	var fields []FieldInfo
	for i := range t.NumField() {
		f := t.Field(i)
		key, ok := f.Tag.Lookup("inject")
		if !ok {
			continue
		}
		if key == "-" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("field %s.%s is tagged inject but is not exported", t.Name(), f.Name)
		}

		fields = append(fields, FieldInfo{
			Name:     f.Name,
			Index:    f.Index,
			Type:     f.Type,
			Key:      strings.TrimSpace(key),
			Optional: isTrue(f.Tag.Get("optional")),
		})
	}

	return fields, nil
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
