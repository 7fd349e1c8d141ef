package job

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoProcessor() Processor {
	return ProcessorFunc(func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})
}

func TestRegisterAndLookup(t *testing.T) {
	Register("test-echo", echoProcessor())

	p, err := Lookup("test-echo")
	require.NoError(t, err)

	out, err := p.Process(context.Background(), json.RawMessage(`{"v":42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":42}`, string(out))
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("no-such-task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-task")
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { Register("", echoProcessor()) })
	assert.Panics(t, func() { Register("nil-proc", nil) })
}

func TestNamesSorted(t *testing.T) {
	Register("test-zz", echoProcessor())
	Register("test-aa", echoProcessor())

	names := Names()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "test-aa")
	assert.Contains(t, names, "test-zz")
}
