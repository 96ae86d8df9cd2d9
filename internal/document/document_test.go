package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderJSONKeepsFieldOrder(t *testing.T) {
	b := NewBuilder().
		StartObject().
		Field("z", "last?").
		Field("a", int64(1)).
		NullField("gone").
		StartObjectField("inner").
		Field("f", 1.0).
		Field("ok", true).
		EndObject().
		Field("m", map[string]any{"b": "2", "a": []any{int64(1), nil}}).
		EndObject()

	out, err := b.Bytes(JSON)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"last?","a":1,"gone":null,"inner":{"f":1.0,"ok":true},"m":{"a":[1,null],"b":"2"}}`, string(out))
}

func TestBuilderRejectsUnsupportedValue(t *testing.T) {
	_, err := NewBuilder().StartObject().Field("c", make(chan int)).EndObject().Bytes(JSON)
	assert.Error(t, err)

	_, err = NewBuilder().StartObject().Bytes(JSON)
	assert.Error(t, err, "unclosed object")
}

func TestYAMLRoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123).UTC()
	out, err := NewBuilder().
		StartObject().
		Field("name", "123").
		Field("when", at).
		Field("cursor", map[string]any{"k": int64(9), "f": 2.5, "s": "true"}).
		EndObject().
		Bytes(YAML)
	require.NoError(t, err)

	p, err := NewParser(out)
	require.NoError(t, err)

	got := map[string]any{}
	err = p.Fields(func(name string, v *Parser) error {
		switch name {
		case "name":
			s, err := v.Text()
			got[name] = s
			return err
		case "when":
			ts, err := v.Time()
			got[name] = *ts
			return err
		case "cursor":
			m, err := v.Map()
			got[name] = m
			return err
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "123", got["name"])
	assert.True(t, at.Equal(got["when"].(time.Time)))
	assert.Equal(t, map[string]any{"k": int64(9), "f": 2.5, "s": "true"}, got["cursor"])
}

func TestParserReadsJSON(t *testing.T) {
	p, err := NewParser([]byte(`{"a": 5, "b": null, "c": "x", "d": {"e": [1, 2.5]}}`))
	require.NoError(t, err)

	a, err := p.Object("a")
	require.NoError(t, err)
	n, err := a.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	b, err := p.Object("b")
	require.NoError(t, err)
	assert.True(t, b.IsNull())
	s, err := b.OptionalText()
	require.NoError(t, err)
	assert.Nil(t, s)

	missing, err := p.Object("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := p.Map()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": int64(5),
		"b": nil,
		"c": "x",
		"d": map[string]any{"e": []any{int64(1), 2.5}},
	}, all)
}

func TestParserTypeErrorsCarryPosition(t *testing.T) {
	p, err := NewParser([]byte("a:\n  - 1\n"))
	require.NoError(t, err)
	a, err := p.Object("a")
	require.NoError(t, err)

	_, err = a.Int64()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at 2:")

	_, err = a.Text()
	assert.Error(t, err)
}

func TestParserRejectsEmptyAndMalformed(t *testing.T) {
	_, err := NewParser(nil)
	assert.Error(t, err)
	_, err = NewParser([]byte(`{"a": `))
	assert.Error(t, err)
}

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType("YML")
	require.NoError(t, err)
	assert.Equal(t, YAML, ct)
	_, err = ParseContentType("cbor")
	assert.Error(t, err)
}

func TestParserInt64AcceptsWholeFloats(t *testing.T) {
	p, err := NewParser([]byte(`{"one": 1.0, "exp": 1.7e12, "half": 0.5, "huge": 1e300}`))
	require.NoError(t, err)

	for key, want := range map[string]int64{"one": 1, "exp": 1_700_000_000_000} {
		v, err := p.Object(key)
		require.NoError(t, err)
		n, err := v.Int64()
		require.NoError(t, err, key)
		assert.Equal(t, want, n, key)
	}
	for _, key := range []string{"half", "huge"} {
		v, err := p.Object(key)
		require.NoError(t, err)
		_, err = v.Int64()
		assert.Error(t, err, key)
	}

	exp, err := p.Object("exp")
	require.NoError(t, err)
	ts, err := exp.Time()
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1_700_000_000_000), ts.UnixMilli())
}
