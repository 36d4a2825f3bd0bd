// Package pipes provides the standard argument pipes: struct validation
// and scalar parsing.
package pipes

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/imdat99/bun-di-sub000"
)

func validationFailed(expected string) error {
	return bundi.NewBadRequestException(fmt.Sprintf("Validation failed (%s is expected)", expected))
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// ParseInt converts the value to an int.
func ParseInt() bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		switch v := value.(type) {
		case int:
			return v, nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, validationFailed("numeric string")
			}
			return n, nil
		}
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt():
			return int(rv.Int()), nil
		case rv.CanUint():
			return int(rv.Uint()), nil
		case rv.CanFloat() && rv.Float() == float64(int(rv.Float())):
			return int(rv.Float()), nil
		}
		return nil, validationFailed("numeric string")
	})
}

// ParseFloat converts the value to a float64.
func ParseFloat() bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		if s, ok := value.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, validationFailed("numeric string")
			}
			return f, nil
		}
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanFloat():
			return rv.Float(), nil
		case rv.CanInt():
			return float64(rv.Int()), nil
		case rv.CanUint():
			return float64(rv.Uint()), nil
		}
		return nil, validationFailed("numeric string")
	})
}

// ParseBool accepts "true" and "false" and boolean values.
func ParseBool() bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch v {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, validationFailed("boolean string")
	})
}

// ParseUUID converts the value to a uuid.UUID.
func ParseUUID() bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, validationFailed("uuid")
			}
			return id, nil
		}
		return nil, validationFailed("uuid")
	})
}

// ParseEnum accepts only the listed strings.
func ParseEnum(values ...string) bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		s, ok := value.(string)
		if !ok || !slices.Contains(values, s) {
			return nil, validationFailed("enum string")
		}
		return s, nil
	})
}

// ParseArray splits a string on sep into a []string. Empty items are dropped.
// A []string passes through.
func ParseArray(sep string) bundi.Pipe {
	if sep == "" {
		sep = ","
	}
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		switch v := value.(type) {
		case []string:
			return v, nil
		case string:
			items := []string{}
			for item := range strings.SplitSeq(v, sep) {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			return items, nil
		}
		return nil, validationFailed("array string")
	})
}

// DefaultValue replaces a missing value, nil or the empty string, with def.
// Place it before parsing pipes.
func DefaultValue(def any) bundi.Pipe {
	return bundi.PipeFunc(func(value any, _ bundi.ArgumentMetadata) (any, error) {
		if isEmpty(value) {
			return def, nil
		}
		return value, nil
	})
}
