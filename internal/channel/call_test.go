package channel

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodCallTypedArguments(t *testing.T) {
	call := NewMethodCall("connect", map[string]any{
		"name":    "nemonic",
		"float":   float64(3),
		"number":  json.Number("7"),
		"int":     2,
		"flag":    true,
		"raw":     []byte{1, 2},
		"encoded": base64.StdEncoding.EncodeToString([]byte{3, 4}),
		"list":    []any{base64.StdEncoding.EncodeToString([]byte{5}), []byte{6}},
	})

	s, err := call.String("name")
	require.NoError(t, err)
	assert.Equal(t, "nemonic", s)

	for key, want := range map[string]int{"float": 3, "number": 7, "int": 2} {
		got, err := call.Int(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	b, err := call.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	raw, err := call.Bytes("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, raw)

	enc, err := call.Bytes("encoded")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, enc)

	list, err := call.BytesList("list")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{5}, {6}}, list)
}

func TestMethodCallArgumentErrors(t *testing.T) {
	call := NewMethodCall("x", map[string]any{
		"text":  "abc",
		"frac":  1.5,
		"nil":   nil,
		"bad64": "***",
	})

	_, err := call.String("missing")
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = call.Int("nil")
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = call.Int("text")
	assert.ErrorIs(t, err, ErrArgumentType)

	_, err = call.Int("frac")
	assert.ErrorIs(t, err, ErrArgumentType)

	_, err = call.Bool("text")
	assert.ErrorIs(t, err, ErrArgumentType)

	_, err = call.Bytes("bad64")
	assert.ErrorIs(t, err, ErrArgumentType)

	_, err = call.BytesList("text")
	assert.ErrorIs(t, err, ErrArgumentType)
}

func TestNewMethodCallNilArguments(t *testing.T) {
	call := NewMethodCall("disconnect", nil)
	assert.NotNil(t, call.Arguments)
	assert.Nil(t, call.Argument("anything"))
}
