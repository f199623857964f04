// Package channel carries named method calls into the process and pushes
// notifications back out, the way a platform method channel does.
package channel

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrArgumentType    = errors.New("argument has wrong type")
)

// MethodCall is one incoming remote operation.
type MethodCall struct {
	Method    string
	Arguments map[string]any
}

// NewMethodCall builds a call. A nil argument map is replaced by an empty one.
func NewMethodCall(method string, args map[string]any) *MethodCall {
	if args == nil {
		args = map[string]any{}
	}
	return &MethodCall{Method: method, Arguments: args}
}

// Argument returns the raw argument value, or nil.
func (c *MethodCall) Argument(key string) any {
	return c.Arguments[key]
}

func (c *MethodCall) lookup(key string) (any, error) {
	v, ok := c.Arguments[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return v, nil
}

// String returns a string argument.
func (c *MethodCall) String(key string) (string, error) {
	v, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrArgumentType, key, v)
	}
	return s, nil
}

// Int returns an integer argument. JSON numbers arrive as float64 and are
// accepted when they hold a whole value.
func (c *MethodCall) Int(key string) (int, error) {
	v, err := c.lookup(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s is not a whole number", ErrArgumentType, key)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrArgumentType, key, err)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want int", ErrArgumentType, key, v)
	}
}

// Bool returns a boolean argument.
func (c *MethodCall) Bool(key string) (bool, error) {
	v, err := c.lookup(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrArgumentType, key, v)
	}
	return b, nil
}

// Bytes returns a byte-array argument. Over JSON, byte arrays travel as
// standard base64 strings.
func (c *MethodCall) Bytes(key string) ([]byte, error) {
	v, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	b, err := toBytes(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// BytesList returns a list-of-byte-arrays argument.
func (c *MethodCall) BytesList(key string) ([][]byte, error) {
	v, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case [][]byte:
		return list, nil
	case []any:
		out := make([][]byte, 0, len(list))
		for i, item := range list {
			b, err := toBytes(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			out = append(out, b)
		}
		return out, nil
	case []string:
		out := make([][]byte, 0, len(list))
		for i, item := range list {
			b, err := toBytes(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			out = append(out, b)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want list", ErrArgumentType, key, v)
	}
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrArgumentType, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %T, want bytes", ErrArgumentType, v)
	}
}
