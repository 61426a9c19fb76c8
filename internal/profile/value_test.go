package profile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKinds(t *testing.T) {
	v, err := Parse([]byte(`{"s":"x","n":12,"f":1.5,"b":true,"z":null,"l":[1,"two"],"m":{"k":1}}`))
	require.NoError(t, err)

	assert.Equal(t, KindMap, v.Kind())
	assert.Equal(t, []string{"s", "n", "f", "b", "z", "l", "m"}, v.Keys())

	s, err := v.StrAt("s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	n, err := v.IntAt("n")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	f, err := v.Field("f")
	require.NoError(t, err)
	fl, err := f.Float()
	require.NoError(t, err)
	assert.Equal(t, 1.5, fl)
	_, err = f.Int()
	assert.Error(t, err, "1.5 is not integral")

	b, err := v.BoolAt("b")
	require.NoError(t, err)
	assert.True(t, b)

	z, ok := v.Get("z")
	require.True(t, ok)
	assert.True(t, z.IsNull())

	l, err := v.Field("l")
	require.NoError(t, err)
	items, err := l.Items()
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "$.l[1]", items[1].Path())

	assert.True(t, v.HasPath("m", "k"))
	assert.False(t, v.HasPath("m", "nope"))
}

func TestAccessorErrorsCarryPath(t *testing.T) {
	v, err := Parse([]byte(`{"commander":{"name":42}}`))
	require.NoError(t, err)

	_, err = v.StrAt("commander", "name")
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, ErrWrongKind))
	assert.Equal(t, "$.commander.name", pe.Path)
	assert.Equal(t, "$.commander.name: want string, got number", err.Error())

	_, err = v.IntAt("commander", "credits")
	assert.True(t, errors.Is(err, ErrMissingKey))
	assert.Contains(t, err.Error(), "$.commander.credits")
}

func TestIntegralFloatIsAccepted(t *testing.T) {
	v, err := Parse([]byte(`{"n":3.0,"big":12345678901}`))
	require.NoError(t, err)
	n, err := v.IntAt("n")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	big, err := v.IntAt("big")
	require.NoError(t, err)
	assert.Equal(t, int64(12345678901), big)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":1}{"b":2}`, `<html>Login</html>`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestScalar(t *testing.T) {
	v, err := Parse([]byte(`[7,"7",true]`))
	require.NoError(t, err)
	items, _ := v.Items()
	a, err := items[0].Scalar()
	require.NoError(t, err)
	b, err := items[1].Scalar()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	_, err = items[2].Scalar()
	assert.Error(t, err)
}

func TestInterfaceRoundTrip(t *testing.T) {
	in := `{"a":[1,{"b":"c"}],"d":null}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)
	out, err := json.Marshal(v.Interface())
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}
