package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeContext struct {
	strict bool
}

func (f fakeContext) CurrentSchema() string { return "Order" }
func (f fakeContext) Seed() int64           { return 1 }
func (f fakeContext) Strict() bool          { return f.strict }

func TestRegisterAndCall(t *testing.T) {
	r := New()
	r.Register("double", func(args []any, ctx Context) (any, error) {
		return args[0].(int64) * 2, nil
	})
	v, err := r.Call("double", []any{int64(21)}, fakeContext{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestCallUnknownLenient(t *testing.T) {
	r := New()
	_, err := r.Call("missing", nil, fakeContext{strict: false})
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestCallUnknownStrict(t *testing.T) {
	r := New()
	_, err := r.Call("missing", nil, fakeContext{strict: true})
	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "missing", pErr.Name)
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestUnregisterClearsLookup(t *testing.T) {
	r := New()
	r.Register("f", func(args []any, ctx Context) (any, error) { return nil, nil })
	_, ok := r.Lookup("f")
	assert.True(t, ok)
	r.Unregister("f")
	_, ok = r.Lookup("f")
	assert.False(t, ok)
}

func TestNegativeCacheClearedOnRegister(t *testing.T) {
	r := New()
	_, ok := r.Lookup("later")
	assert.False(t, ok)

	r.Register("later", func(args []any, ctx Context) (any, error) { return "ok", nil })
	v, ok := r.Lookup("later")
	require.True(t, ok)
	res, err := v(nil, fakeContext{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestQualifyAndSplit(t *testing.T) {
	assert.Equal(t, "ns.name", Qualify("ns", "name"))
	assert.Equal(t, "name", Qualify("", "name"))

	ns, name := Split("ns.name")
	assert.Equal(t, "ns", ns)
	assert.Equal(t, "name", name)

	ns, name = Split("name")
	assert.Equal(t, "", ns)
	assert.Equal(t, "name", name)
}
