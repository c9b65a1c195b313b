package extract

import (
	"testing"

	"generichttp/pkg/models"
	"generichttp/pkg/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(status int, body string) *snapshot.Snapshot {
	c := snapshot.NewCache()
	return c.Store(status, nil, []byte(body))
}

func mustExtractor(t *testing.T, port models.PortConfig, ignoreResponseCode bool) *Extractor {
	t.Helper()
	e, err := NewExtractor(port, ignoreResponseCode)
	require.NoError(t, err)
	return e
}

func TestNewRule(t *testing.T) {
	r, err := NewRule(models.ReadRule{JSONPath: "/a/b", BodyRegex: "x"})
	require.NoError(t, err)
	assert.IsType(t, &PointerRule{}, r)

	r, err = NewRule(models.ReadRule{BodyRegex: `^temp=([0-9.]+)`})
	require.NoError(t, err)
	assert.IsType(t, &RegexRule{}, r)

	r, err = NewRule(models.ReadRule{})
	require.NoError(t, err)
	assert.Equal(t, StatusRule{}, r)

	_, err = NewRule(models.ReadRule{BodyRegex: `([`})
	assert.ErrorIs(t, err, ErrRule)

	_, err = NewRule(models.ReadRule{JSONPath: "a/b"})
	assert.ErrorIs(t, err, ErrRule)
}

func TestExtractNoData(t *testing.T) {
	e := mustExtractor(t, models.PortConfig{Type: models.PortTypeBoolean}, false)

	v, err := e.Extract(snapshot.NewCache().Load())
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = e.Extract(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExtractStatusOnly(t *testing.T) {
	tests := []struct {
		name               string
		portType           string
		status             int
		ignoreResponseCode bool
		want               any
	}{
		{"boolean no content", models.PortTypeBoolean, 204, false, true},
		{"number no content", models.PortTypeNumber, 204, false, int64(1)},
		{"boolean redirect", models.PortTypeBoolean, 302, false, false},
		{"number redirect", models.PortTypeNumber, 302, false, int64(0)},
		{"boolean not found", models.PortTypeBoolean, 404, false, nil},
		{"number not found", models.PortTypeNumber, 404, false, nil},
		{"boolean not found ignored", models.PortTypeBoolean, 404, true, false},
		{"number server error ignored", models.PortTypeNumber, 500, true, int64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustExtractor(t, models.PortConfig{Type: tt.portType}, tt.ignoreResponseCode)
			v, err := e.Extract(snap(tt.status, ""))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestExtractJSONPointer(t *testing.T) {
	body := `{"a": {"b": 7, "t": "  42 ", "f": 3.25, "s": "on", "list": [10, 20]}, "flag": true}`

	tests := []struct {
		name string
		port models.PortConfig
		want any
	}{
		{"nested integer", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/b"}}, int64(7)},
		{"float", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/f"}}, 3.25},
		{"numeric string", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/t"}}, int64(42)},
		{"array index", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/list/1"}}, int64(20)},
		{"bool as number", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/flag"}}, int64(1)},
		{"default true value", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{JSONPath: "/flag"}}, true},
		{"string true value", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{JSONPath: "/a/s", TrueValue: "on"}}, true},
		{"number true value", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{JSONPath: "/a/b", TrueValue: 7}}, true},
		{"not a true value", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{JSONPath: "/a/b"}}, false},
		{"object is not a number", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a"}}, nil},
	}

	s := snap(200, body)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := mustExtractor(t, tt.port, false).Extract(s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestExtractJSONPointerNoJSON(t *testing.T) {
	e := mustExtractor(t, models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/b"}}, false)
	for _, body := range []string{"not json", "null", ""} {
		v, err := e.Extract(snap(200, body))
		require.NoError(t, err, body)
		assert.Nil(t, v, body)
	}
}

func TestExtractJSONPointerUnresolvable(t *testing.T) {
	e := mustExtractor(t, models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/missing"}}, false)
	v, err := e.Extract(snap(200, `{"a": {"b": 7}}`))
	assert.Nil(t, v)
	assert.ErrorIs(t, err, ErrPointer)
}

func TestExtractRegex(t *testing.T) {
	tests := []struct {
		name string
		port models.PortConfig
		body string
		want any
	}{
		{"first group to number", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{BodyRegex: `^temp=([0-9.]+)`}}, "temp=23.5C", 23.5},
		{"whole match without group", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{BodyRegex: `[0-9]+`}}, "17 degrees", int64(17)},
		{"anchored at start", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{BodyRegex: `[0-9]+`}}, "t=17", nil},
		{"no match", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{BodyRegex: `state=(\w+)`}}, "error", nil},
		{"boolean from group", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{BodyRegex: `state=(\w+)`, TrueValue: []any{"on", "1"}}}, "state=on", true},
		{"boolean false from group", models.PortConfig{Type: models.PortTypeBoolean, Read: models.ReadRule{BodyRegex: `state=(\w+)`, TrueValue: []any{"on", "1"}}}, "state=off", false},
		{"non numeric group", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{BodyRegex: `v=(\w+)`}}, "v=abc", nil},
		{"optional group not taking part", models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{BodyRegex: `(\d+)?x`}}, "x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := mustExtractor(t, tt.port, false).Extract(snap(200, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestExtractIsPure(t *testing.T) {
	e := mustExtractor(t, models.PortConfig{Type: models.PortTypeNumber, Read: models.ReadRule{JSONPath: "/a/b"}}, false)
	s := snap(200, `{"a": {"b": 7}}`)

	first, err := e.Extract(s)
	require.NoError(t, err)
	second, err := e.Extract(s)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": int64(7)}}, s.JSON)
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		raw    any
		want   any
		wantOK bool
	}{
		{"  42 ", int64(42), true},
		{"3.14", 3.14, true},
		{"-7", int64(-7), true},
		{"+5", int64(5), true},
		{"1e3", 1000.0, true},
		{"abc", nil, false},
		{"", nil, false},
		{"inf", nil, false},
		{"NaN", nil, false},
		{"0x10", nil, false},
		{"1_000", int64(1000), true},
		{"1_000.5", 1000.5, true},
		{"1__0", nil, false},
		{"_1", nil, false},
		{"1_", nil, false},
		{"1._5", nil, false},
		{true, int64(1), true},
		{false, int64(0), true},
		{int64(9), int64(9), true},
		{12, int64(12), true},
		{2.5, 2.5, true},
		{nil, nil, false},
		{[]any{1}, nil, false},
	}

	for _, tt := range tests {
		got, ok := ToNumber(tt.raw)
		assert.Equal(t, tt.wantOK, ok, "raw=%#v", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%#v", tt.raw)
	}
}

func TestToBoolean(t *testing.T) {
	assert.True(t, ToBoolean("on", []any{"on", "1"}))
	assert.False(t, ToBoolean("off", []any{"on", "1"}))
	assert.False(t, ToBoolean(1, []any{"on", "1"}))
	assert.True(t, ToBoolean(int64(1), []any{true}))
	assert.True(t, ToBoolean(1.0, []any{1}))
	assert.False(t, ToBoolean(int64(0), []any{true}))
	assert.True(t, ToBoolean(nil, []any{nil}))
	assert.False(t, ToBoolean("true", []any{true}))
}
