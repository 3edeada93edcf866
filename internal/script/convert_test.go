package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

func TestJSONToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	v := jsonToLua(L, gjson.Parse(`{"id":"a","n":2.5,"ok":true,"tags":["x","y"],"meta":{"k":null}}`))
	tbl, ok := v.(*lua.LTable)
	require.True(t, ok)

	assert.Equal(t, lua.LString("a"), tbl.RawGetString("id"))
	assert.Equal(t, lua.LNumber(2.5), tbl.RawGetString("n"))
	assert.Equal(t, lua.LTrue, tbl.RawGetString("ok"))

	tags, ok := tbl.RawGetString("tags").(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, tags.Len())
	assert.Equal(t, lua.LString("y"), tags.RawGetInt(2))

	meta, ok := tbl.RawGetString("meta").(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, lua.LNil, meta.RawGetString("k"))
}

func TestTableToJSON(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = {id = "o1", qty = 3, price = 1.5, items = {"a", "b"}, ["a.b"] = true, nested = {x = {y = 1}}}`))
	data, err := tableToJSON(L.GetGlobal("t").(*lua.LTable))
	require.NoError(t, err)

	doc := gjson.ParseBytes(data)
	assert.Equal(t, "o1", doc.Get("id").String())
	assert.Equal(t, int64(3), doc.Get("qty").Int())
	assert.Equal(t, 1.5, doc.Get("price").Float())
	assert.Equal(t, "b", doc.Get("items.1").String())
	assert.True(t, doc.Get(`a\.b`).Bool())
	assert.Equal(t, int64(1), doc.Get("nested.x.y").Int())
}

func TestTableToJSON_Errors(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = {[1] = "a", [true] = "b"}`))
	_, err := tableToJSON(L.GetGlobal("t").(*lua.LTable))
	assert.ErrorContains(t, err, "keys must be strings")

	require.NoError(t, L.DoString(`f = {fn = function() end}`))
	_, err = tableToJSON(L.GetGlobal("f").(*lua.LTable))
	assert.ErrorContains(t, err, "cannot convert function")

	require.NoError(t, L.DoString(`c = {} c.self = c`))
	_, err = tableToJSON(L.GetGlobal("c").(*lua.LTable))
	assert.ErrorContains(t, err, "nesting exceeds")
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "plain", escapePath("plain"))
	assert.Equal(t, `a\.b\*c`, escapePath("a.b*c"))
}
