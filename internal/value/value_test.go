package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesObjectOrder(t *testing.T) {
	v, err := Parse([]byte(`{"b":1,"a":[true,null,"x"],"c":{"z":1.5,"y":-2}}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	keys := make([]string, 0)
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)
	assert.Equal(t, `{"b":1,"a":[true,null,"x"],"c":{"z":1.5,"y":-2}}`, v.String())
}

func TestParseDuplicateKeyKeepsFirstPosition(t *testing.T) {
	v := MustParse(`{"a":1,"b":2,"a":3}`)
	assert.Equal(t, `{"a":3,"b":2}`, v.String())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestEqualIgnoresMemberOrder(t *testing.T) {
	a := MustParse(`{"x":1,"y":[1,2]}`)
	b := MustParse(`{"y":[1,2],"x":1}`)
	c := MustParse(`{"y":[2,1],"x":1}`)

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(Number(1), String("1")))
	assert.True(t, Equal(Null(), Value{}))
}

func TestLookup(t *testing.T) {
	v := MustParse(`{"user":{"plan":"pro","tags":["a","b"]}}`)

	got, ok := v.Lookup([]string{"user", "plan"})
	require.True(t, ok)
	assert.Equal(t, String("pro"), got)

	got, ok = v.Lookup([]string{"user", "tags", "1"})
	require.True(t, ok)
	assert.Equal(t, String("b"), got)

	_, ok = v.Lookup([]string{"user", "missing"})
	assert.False(t, ok)
	_, ok = v.Lookup([]string{"user", "plan", "deeper"})
	assert.False(t, ok)
	_, ok = v.Lookup([]string{"user", "tags", "9"})
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	r, ok := Compare(Number(1), Number(2))
	require.True(t, ok)
	assert.Equal(t, -1, r)

	r, ok = Compare(String("b"), String("a"))
	require.True(t, ok)
	assert.Equal(t, 1, r)

	_, ok = Compare(Number(1), String("1"))
	assert.False(t, ok)
}

func TestFromInterfaceRoundTrip(t *testing.T) {
	in := map[string]any{
		"n":    10,
		"list": []any{"a", 2.5, false, nil},
		"obj":  map[string]any{"k": "v"},
	}
	v, err := FromInterface(in)
	require.NoError(t, err)
	assert.Equal(t, `{"list":["a",2.5,false,null],"n":10,"obj":{"k":"v"}}`, v.String())

	back := v.Interface().(map[string]any)
	assert.Equal(t, 10.0, back["n"])

	_, err = FromInterface(struct{}{})
	assert.Error(t, err)
}

func TestJSONStructField(t *testing.T) {
	type wrapper struct {
		Value  Value  `json:"value"`
		Schema *Value `json:"schema,omitempty"`
	}

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"value":{"limit":10}}`), &w))
	assert.Nil(t, w.Schema)
	n, ok := w.Value.Get("limit")
	require.True(t, ok)
	assert.Equal(t, Number(10), n)

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":{"limit":10}}`, string(out))
}

func TestEmptyContainersEncode(t *testing.T) {
	assert.Equal(t, `[]`, Array().String())
	assert.Equal(t, `{}`, Object().String())
	assert.Equal(t, `null`, Value{}.String())
}
