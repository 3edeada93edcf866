package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds table nesting when converting Lua values.
const maxDepth = 32

// jsonToLua converts a parsed JSON value into a Lua value.
func jsonToLua(L *lua.LState, r gjson.Result) lua.LValue {
	switch r.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.String:
		return lua.LString(r.Str)
	}

	tbl := L.NewTable()
	switch {
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			tbl.Append(jsonToLua(L, v))
			return true
		})
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			tbl.RawSetString(k.String(), jsonToLua(L, v))
			return true
		})
	}
	return tbl
}

// tableToJSON encodes a Lua table as a JSON object, one key at a time.
func tableToJSON(t *lua.LTable) ([]byte, error) {
	doc := []byte("{}")
	var err error
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			err = fmt.Errorf("event field keys must be strings, got %s", k.Type())
			return
		}
		var gv any
		if gv, err = luaToGo(v, 0); err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, escapePath(string(key)), gv)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// luaToGo converts a Lua value to a JSON-compatible Go value. Tables with
// keys 1..n become slices, other tables become maps.
func luaToGo(v lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("table nesting exceeds %d levels", maxDepth)
	}

	switch lv := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(lv), nil
	case lua.LNumber:
		f := float64(lv)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(lv), nil
	case *lua.LTable:
		if n := lv.Len(); n > 0 && countKeys(lv) == n {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				item, err := luaToGo(lv.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr[i-1] = item
			}
			return arr, nil
		}
		m := make(map[string]any)
		var err error
		lv.ForEach(func(k, val lua.LValue) {
			if err != nil {
				return
			}
			var item any
			if item, err = luaToGo(val, depth+1); err == nil {
				m[keyString(k)] = item
			}
		})
		return m, err
	default:
		return nil, fmt.Errorf("cannot convert %s to JSON", v.Type())
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		return strconv.FormatFloat(float64(n), 'f', -1, 64)
	}
	return k.String()
}

// escapePath escapes the sjson path metacharacters in a literal key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
