package sanitize

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxDepth bounds the nesting walked by Sanitize.
const DefaultMaxDepth = 64

// DefaultMaxContainers bounds the number of maps, sequences and structs
// walked by one Sanitize call.
const DefaultMaxContainers = 100_000

// Markers substituted for values that are not walked.
const (
	MaxDepthMarker  = "[MAX_DEPTH]"
	CycleMarker     = "[CYCLE]"
	TruncatedMarker = "[TRUNCATED]"
)

// checkedValueKey is the field a checked wrapper stores its payload under.
const checkedValueKey = "value"

var (
	valueType         = reflect.TypeOf(Value{})
	rawMessageType    = reflect.TypeOf(json.RawMessage(nil))
	numberType        = reflect.TypeOf(json.Number(""))
	durationType      = reflect.TypeOf(time.Duration(0))
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// Sanitizer converts arbitrary values into Values.
type Sanitizer struct {
	// MaxDepth bounds nesting. Zero means DefaultMaxDepth.
	MaxDepth int

	// MaxContainers bounds the total work of one call, so values that share
	// subtrees many times over still finish. Zero means DefaultMaxContainers.
	MaxContainers int
}

var defaultSanitizer = Sanitizer{MaxDepth: DefaultMaxDepth, MaxContainers: DefaultMaxContainers}

// Sanitize converts raw using the default depth limit.
func Sanitize(raw any) Value {
	return defaultSanitizer.Sanitize(raw)
}

// Parse decodes JSON and sanitizes the result. Numbers keep integer precision.
func Parse(data []byte) (Value, error) {
	decoded, err := decodeJSON(data)
	if err != nil {
		return Value{}, fmt.Errorf("decoding json: %w", err)
	}
	return Sanitize(decoded), nil
}

// Sanitize converts raw into a Value. It never fails.
func (s Sanitizer) Sanitize(raw any) Value {
	w := &walker{
		maxDepth: s.MaxDepth,
		budget:   s.MaxContainers,
		onPath:   make(map[visit]struct{}),
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	if w.budget <= 0 {
		w.budget = DefaultMaxContainers
	}
	return w.walk(reflect.ValueOf(raw), 0)
}

// walker carries the state of one Sanitize call.
type walker struct {
	maxDepth int
	budget   int
	onPath   map[visit]struct{}
}

// visit identifies a pointer, map or slice on the current path. Slices
// include their length so a prefix of a slice is a different value.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// enter marks v as being walked. It returns false when v is already on the
// path, which means the value refers back to itself.
func (w *walker) enter(v reflect.Value) (visit, bool) {
	key := visit{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.len = v.Len()
	}
	if _, seen := w.onPath[key]; seen {
		return key, false
	}
	w.onPath[key] = struct{}{}
	return key, true
}

func (w *walker) leave(key visit) {
	delete(w.onPath, key)
}

// spend charges one container against the budget.
func (w *walker) spend() bool {
	if w.budget <= 0 {
		return false
	}
	w.budget--
	return true
}

func (w *walker) walk(v reflect.Value, depth int) Value {
	if !v.IsValid() {
		return Null()
	}
	if depth > w.maxDepth {
		return String(MaxDepthMarker)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			if v.Kind() == reflect.Map || v.Kind() == reflect.Slice {
				return emptyContainer(v)
			}
			return Null()
		}
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		key, ok := w.enter(v)
		if !ok {
			return String(CycleMarker)
		}
		defer w.leave(key)
	}

	if special, ok := w.walkSpecial(v, depth); ok {
		return special
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if !w.spend() {
			return String(TruncatedMarker)
		}
	}

	switch v.Kind() {
	case reflect.Pointer:
		return w.walk(v.Elem(), depth+1)

	case reflect.Interface:
		return w.walk(v.Elem(), depth)

	case reflect.Bool:
		return Bool(v.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if enum, ok := enumString(v); ok {
			return String(enum)
		}
		return Int(v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if enum, ok := enumString(v); ok {
			return String(enum)
		}
		u := v.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u))
		}
		return Int(int64(u))

	case reflect.Float32, reflect.Float64:
		return floatValue(v.Float())

	case reflect.String:
		if isEnumType(v.Type()) {
			return String(strings.ToUpper(v.String()))
		}
		return String(v.String())

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return String(base64.StdEncoding.EncodeToString(v.Bytes()))
		}
		return w.walkList(v, depth)

	case reflect.Array:
		return w.walkList(v, depth)

	case reflect.Map:
		return collapseChecked(w.walkMap(v, depth))

	case reflect.Struct:
		fields := make(map[string]Value, v.NumField())
		w.walkStruct(v, depth, fields)
		return collapseChecked(Mapping(fields))

	default:
		if v.CanInterface() {
			return String(fmt.Sprint(v.Interface()))
		}
		return String(v.Type().String())
	}
}

// walkSpecial handles types whose meaning is carried by a method or by a
// well-known encoding rather than by their kind.
func (w *walker) walkSpecial(v reflect.Value, depth int) (Value, bool) {
	if !v.CanInterface() {
		return Value{}, false
	}

	t := v.Type()
	switch t {
	case valueType:
		return w.walk(reflect.ValueOf(v.Interface().(Value).Interface()), depth), true
	case rawMessageType:
		return w.walkJSON(v.Bytes(), depth), true
	case numberType:
		return numberValue(json.Number(v.String())), true
	case durationType:
		return String(time.Duration(v.Int()).String()), true
	}

	if t.Implements(textMarshalerType) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return String(fmt.Sprint(v.Interface())), true
		}
		if t.Kind() == reflect.String && isEnumType(t) {
			return String(strings.ToUpper(string(text))), true
		}
		return String(string(text)), true
	}

	if t.Implements(jsonMarshalerType) {
		data, err := v.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return String(fmt.Sprint(v.Interface())), true
		}
		return w.walkJSON(data, depth), true
	}

	return Value{}, false
}

func (w *walker) walkJSON(data []byte, depth int) Value {
	if len(bytes.TrimSpace(data)) == 0 {
		return Null()
	}
	decoded, err := decodeJSON(data)
	if err != nil {
		return String(string(data))
	}
	return w.walk(reflect.ValueOf(decoded), depth+1)
}

func (w *walker) walkList(v reflect.Value, depth int) Value {
	items := make([]Value, v.Len())
	for i := range items {
		items[i] = w.walk(v.Index(i), depth+1)
	}
	return Sequence(items...)
}

// walkMap visits entries in key order. When several keys render to the same
// text, a string-typed key wins over the others, which are ranked by type.
func (w *walker) walkMap(v reflect.Value, depth int) Value {
	type entry struct {
		name     string
		isString bool
		typ      string
		key      reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := iter.Key()
		if k.Kind() == reflect.Interface && !k.IsNil() {
			k = k.Elem()
		}
		entries = append(entries, entry{
			name:     mapKey(k),
			isString: k.Kind() == reflect.String,
			typ:      k.Type().String(),
			key:      iter.Key(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.name != b.name {
			return a.name < b.name
		}
		if a.isString != b.isString {
			return a.isString
		}
		return a.typ < b.typ
	})

	out := make(map[string]Value, len(entries))
	for _, e := range entries {
		if _, taken := out[e.name]; taken {
			continue
		}
		out[e.name] = w.walk(v.MapIndex(e.key), depth+1)
	}
	return Mapping(out)
}

// walkStruct writes exported fields into out under their json names.
// Untagged embedded structs are flattened into the parent.
func (w *walker) walkStruct(v reflect.Value, depth int, out map[string]Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		fv := v.Field(i)
		if field.Anonymous && name == "" {
			embedded := fv
			if embedded.Kind() == reflect.Pointer {
				if embedded.IsNil() {
					continue
				}
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				if depth+1 > w.maxDepth {
					continue
				}
				w.walkStruct(embedded, depth+1, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		out[name] = w.walk(fv, depth+1)
	}
}

func emptyContainer(v reflect.Value) Value {
	if v.Kind() == reflect.Map {
		return Mapping(nil)
	}
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return String("")
	}
	return Sequence()
}

// collapseChecked reduces a checked wrapper to its scalar payload.
func collapseChecked(m Value) Value {
	inner, ok := m.Get(checkedValueKey)
	if ok && inner.IsScalar() {
		return inner
	}
	return m
}

// isEnumType reports whether t is a named string type. Such types are how
// enumerations are declared, so their values are normalized to uppercase.
func isEnumType(t reflect.Type) bool {
	return t.Kind() == reflect.String && t.PkgPath() != "" && t != numberType
}

// enumString returns the uppercase name of a named integer enumeration.
func enumString(v reflect.Value) (string, bool) {
	t := v.Type()
	if t.PkgPath() == "" || !t.Implements(stringerType) || !v.CanInterface() {
		return "", false
	}
	return strings.ToUpper(v.Interface().(fmt.Stringer).String()), true
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := tm.MarshalText(); err == nil {
				return string(text)
			}
		}
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

func floatValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Float(f)
}

func numberValue(n json.Number) Value {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
	}
	if f, err := n.Float64(); err == nil {
		return floatValue(f)
	}
	return String(n.String())
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
