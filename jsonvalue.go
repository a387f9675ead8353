package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func parseUUIDString(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// reservedMarkers is the exact set from spec.md §3.2. Any object key not in
// this set, beginning with "@", is an UnknownMarkerError; any object mixing
// a reserved key with a non-marker key is a MixedMarkerError.
var reservedMarkers = map[string]bool{
	"@t": true, "@b": true, "@d": true, "@bi": true, "@f": true,
	"@set": true, "@fset": true, "@g": true, "@ref": true, "@reduce": true,
	"@dt": true, "@date": true, "@time": true, "@td": true, "@dec": true,
	"@uuid": true, "@tz": true, "@cls": true, "@s": true,
	"@kv": true, "@ks": true, "@children": true, "@first": true,
}

// markerGroups lists the only marker-key combinations allowed to appear
// together in one JSON object; any other multi-marker object is a
// BadMarkerShapeError.
var markerGroups = [][2]string{
	{"@dt", "@tz"},
	{"@time", "@tz"},
	{"@children", "@first"},
	{"@cls", "@s"},
}

// WriteJSON serializes v (a decoded/recognized value-model tree) to
// canonical JSON text.
func WriteJSON(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, defaultMaxDepth); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// MarshalJSONValue is WriteJSON into a freshly allocated buffer.
func MarshalJSONValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, defaultMaxDepth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeValue carries an explicit depth counter, mirroring recognizeAt's
// bound (recognize.go) so a pathologically deep value-model tree fails
// with DepthExceededError instead of overflowing the stack.
func writeValue(buf *bytes.Buffer, v interface{}, depth int) error {
	if depth <= 0 {
		return &DepthExceededError{Limit: defaultMaxDepth}
	}

	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case None:
		buf.WriteString("null")
	case *None:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case *big.Int:
		return writeBigInt(buf, x)
	case float64:
		return writeFloat(buf, x)
	case string:
		writeJSONString(buf, x)
	case Bytes:
		return writeMarker1(buf, "@b", base64.StdEncoding.EncodeToString([]byte(x)))
	case ByteString:
		return writeMarker1(buf, "@b", base64.StdEncoding.EncodeToString([]byte(x)))

	case Tuple:
		return writeMarkerArray(buf, "@t", []interface{}(x), depth-1)
	case []interface{}:
		return writeArray(buf, x, depth-1)
	case Set:
		return writeMarkerArray(buf, "@set", []interface{}(x), depth-1)
	case FrozenSet:
		return writeMarkerArray(buf, "@fset", []interface{}(x), depth-1)

	case Dict:
		return writeDict(buf, x, depth-1)

	case Class:
		return writeMarkerArray(buf, "@g", []interface{}{x.Module, x.Name}, depth-1)

	case Ref:
		return writeRef(buf, x, depth-1)

	case *Reduce:
		return writeReduce(buf, x, depth-1)
	case Reduce:
		return writeReduce(buf, &x, depth-1)

	case *DateTime:
		return writeDateTime(buf, x, depth-1)
	case DateTime:
		return writeDateTime(buf, &x, depth-1)
	case *Date:
		return writeObjectFields(buf, []kvPair{{"@date", dateString(x.Year, x.Month, x.Day)}}, depth-1)
	case Date:
		return writeObjectFields(buf, []kvPair{{"@date", dateString(x.Year, x.Month, x.Day)}}, depth-1)
	case *Time:
		return writeTime(buf, x, depth-1)
	case Time:
		return writeTime(buf, &x, depth-1)
	case *Timedelta:
		return writeMarkerArray(buf, "@td", []interface{}{int64(x.Days), int64(x.Seconds), int64(x.Microseconds)}, depth-1)
	case Timedelta:
		return writeMarkerArray(buf, "@td", []interface{}{int64(x.Days), int64(x.Seconds), int64(x.Microseconds)}, depth-1)
	case *Decimal:
		return writeMarker1(buf, "@dec", x.Text)
	case Decimal:
		return writeMarker1(buf, "@dec", x.Text)
	case *UUID:
		return writeMarker1(buf, "@uuid", x.ID.String())
	case UUID:
		return writeMarker1(buf, "@uuid", x.ID.String())

	case *Record:
		return writeRecord(buf, x, depth-1)
	case Record:
		return writeRecord(buf, &x, depth-1)

	case *BTreeKV:
		return writeBTreeKV(buf, x, depth-1)
	case *BTreeKS:
		return writeMarkerArray(buf, "@ks", x.Keys, depth-1)
	case *BTreeChildren:
		return writeBTreeChildren(buf, x, depth-1)

	default:
		return &EncodeFailureError{Reason: fmt.Sprintf("json writer: unsupported value type %T", v)}
	}
	return nil
}

type kvPair struct {
	Key string
	Val interface{}
}

func writeObjectFields(buf *bytes.Buffer, fields []kvPair, depth int) error {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, f.Key)
		buf.WriteByte(':')
		if err := writeValue(buf, f.Val, depth); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeMarker1(buf *bytes.Buffer, key string, s string) error {
	return writeObjectFields(buf, []kvPair{{key, s}}, defaultMaxDepth)
}

func writeMarkerArray(buf *bytes.Buffer, key string, items []interface{}, depth int) error {
	buf.WriteByte('{')
	writeJSONString(buf, key)
	buf.WriteString(":[")
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, it, depth); err != nil {
			return err
		}
	}
	buf.WriteString("]}")
	return nil
}

func writeArray(buf *bytes.Buffer, items []interface{}, depth int) error {
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, it, depth); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// writeDict emits a plain JSON object if every key is a string not
// colliding with a reserved marker; otherwise the unambiguous "@d" pair-list
// form, per spec.md §3.1/§3.2.
func writeDict(buf *bytes.Buffer, d Dict, depth int) error {
	plain := true
	d.Iter()(func(k, _ interface{}) bool {
		s, ok := k.(string)
		if !ok || (strings.HasPrefix(s, "@") && reservedMarkers[s]) {
			plain = false
			return false
		}
		return true
	})
	if !plain {
		pairs := make([]interface{}, 0, d.Len())
		d.Iter()(func(k, v interface{}) bool {
			pairs = append(pairs, []interface{}{k, v})
			return true
		})
		return writeMarkerArray(buf, "@d", pairs, depth)
	}
	buf.WriteByte('{')
	first := true
	var err error
	d.Iter()(func(k, v interface{}) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONString(buf, k.(string))
		buf.WriteByte(':')
		err = writeValue(buf, v, depth)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeRef(buf *bytes.Buffer, r Ref, depth int) error {
	hexOid := fmt.Sprintf("%x", []byte(r.Oid))
	if r.HasClass {
		return writeMarkerArray(buf, "@ref", []interface{}{hexOid, r.ClassHint}, depth)
	}
	return writeMarker1(buf, "@ref", hexOid)
}

func writeReduce(buf *bytes.Buffer, r *Reduce, depth int) error {
	if depth <= 0 {
		return &DepthExceededError{Limit: defaultMaxDepth}
	}
	buf.WriteByte('{')
	writeJSONString(buf, "@reduce")
	buf.WriteByte(':')
	buf.WriteByte('{')
	writeJSONString(buf, "f")
	buf.WriteString(":[")
	writeJSONString(buf, r.Callable.Module)
	buf.WriteByte(',')
	writeJSONString(buf, r.Callable.Name)
	buf.WriteString("],")
	writeJSONString(buf, "args")
	buf.WriteByte(':')
	if err := writeArray(buf, []interface{}(r.Args), depth); err != nil {
		return err
	}
	if r.HasState {
		buf.WriteByte(',')
		writeJSONString(buf, "state")
		buf.WriteByte(':')
		if err := writeValue(buf, r.State, depth); err != nil {
			return err
		}
	}
	if len(r.ListItems) > 0 {
		buf.WriteByte(',')
		writeJSONString(buf, "li")
		buf.WriteByte(':')
		if err := writeArray(buf, r.ListItems, depth); err != nil {
			return err
		}
	}
	if r.HasDictItems {
		buf.WriteByte(',')
		writeJSONString(buf, "di")
		buf.WriteByte(':')
		if err := writeDict(buf, r.DictItems, depth); err != nil {
			return err
		}
	}
	buf.WriteString("}}")
	return nil
}

func writeDateTime(buf *bytes.Buffer, dt *DateTime, depth int) error {
	iso := fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
	if dt.Microsecond != 0 {
		iso += fmt.Sprintf(".%06d", dt.Microsecond)
	}
	if dt.TZ != nil && dt.TZ.FixedOffset != nil {
		iso += offsetSuffix(dt.TZ.FixedOffset)
		return writeObjectFields(buf, []kvPair{{"@dt", iso}}, depth)
	}
	fields := []kvPair{{"@dt", iso}}
	if dt.TZ != nil {
		fields = append(fields, kvPair{"@tz", tzMarkerValue(dt.TZ)})
	}
	return writeObjectFields(buf, fields, depth)
}

func writeTime(buf *bytes.Buffer, t *Time, depth int) error {
	iso := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Microsecond != 0 {
		iso += fmt.Sprintf(".%06d", t.Microsecond)
	}
	if t.TZ != nil && t.TZ.FixedOffset != nil {
		iso += offsetSuffix(t.TZ.FixedOffset)
		return writeObjectFields(buf, []kvPair{{"@time", iso}}, depth)
	}
	fields := []kvPair{{"@time", iso}}
	if t.TZ != nil {
		fields = append(fields, kvPair{"@tz", tzMarkerValue(t.TZ)})
	}
	return writeObjectFields(buf, fields, depth)
}

func dateString(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// offsetSuffix renders a fixed UTC offset as the "+HH:MM"/"-HH:MM" suffix
// ISO8601 appends directly to the timestamp — no separate "@tz" marker,
// since the offset alone is the whole of its provenance.
func offsetSuffix(td *Timedelta) string {
	total := td.Days*86400 + td.Seconds
	sign := "+"
	if total < 0 {
		sign = "-"
		total = -total
	}
	h := total / 3600
	m := (total % 3600) / 60
	return fmt.Sprintf("%s%02d:%02d", sign, h, m)
}

func tzMarkerValue(tz *TZ) Dict {
	d := NewDictWithSizeHint(1)
	switch {
	case tz.ZoneInfo != "":
		d.Set("zoneinfo", tz.ZoneInfo)
	default:
		d.Set("name", tz.Name)
	}
	return d
}

func writeRecord(buf *bytes.Buffer, r *Record, depth int) error {
	return writeObjectFields(buf, []kvPair{
		{"@cls", []interface{}{r.Class.Module, r.Class.Name}},
		{"@s", r.State},
	}, depth)
}

func writeBTreeKV(buf *bytes.Buffer, kv *BTreeKV, depth int) error {
	if depth <= 0 {
		return &DepthExceededError{Limit: defaultMaxDepth}
	}
	buf.WriteByte('{')
	writeJSONString(buf, "@kv")
	buf.WriteString(":[")
	for i, p := range kv.Pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		if err := writeValue(buf, p[0], depth); err != nil {
			return err
		}
		buf.WriteByte(',')
		if err := writeValue(buf, p[1], depth); err != nil {
			return err
		}
		buf.WriteByte(']')
	}
	buf.WriteString("]}")
	return nil
}

func writeBTreeChildren(buf *bytes.Buffer, c *BTreeChildren, depth int) error {
	if depth <= 0 {
		return &DepthExceededError{Limit: defaultMaxDepth}
	}
	buf.WriteByte('{')
	writeJSONString(buf, "@children")
	buf.WriteByte(':')
	if err := writeArray(buf, c.Children, depth); err != nil {
		return err
	}
	buf.WriteByte(',')
	writeJSONString(buf, "@first")
	buf.WriteByte(':')
	if err := writeValue(buf, c.First, depth); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

// writeBigInt picks the JSON form by magnitude rather than by Go type:
// a *big.Int that does fit in an int64 is written as a bare number; one
// that does not is written through the "@bi" string form so a reader using
// float64/int64 arithmetic never silently loses precision.
func writeBigInt(buf *bytes.Buffer, n *big.Int) error {
	if n.IsInt64() {
		buf.WriteString(n.String())
		return nil
	}
	return writeMarker1(buf, "@bi", n.String())
}

// writeFloat always emits a decimal point or exponent so the reader's
// integer/float disposition rule (spec.md §4.5) never misreads an integral
// float like 42.0 as an int.
func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) {
		return writeMarker1(buf, "@f", "nan")
	}
	if math.IsInf(f, 1) {
		return writeMarker1(buf, "@f", "inf")
	}
	if math.IsInf(f, -1) {
		return writeMarker1(buf, "@f", "-inf")
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	buf.WriteString(s)
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// ReadJSON parses canonical JSON text into a value-model tree. It uses
// encoding/json's token-mode Decoder rather than Unmarshal into
// map[string]interface{}, because Unmarshal's generic map target discards
// key order — and a plain Dict decoded from JSON must preserve the
// insertion order the original pickle dict had.
func ReadJSON(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := readValue(dec, defaultMaxDepth)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &BadJSONError{Reason: "trailing data after top-level value"}
	}
	return v, nil
}

// UnmarshalJSONValue is ReadJSON over an in-memory buffer.
func UnmarshalJSONValue(data []byte) (interface{}, error) {
	return ReadJSON(bytes.NewReader(data))
}

// readValue carries an explicit depth counter, mirroring recognizeAt's
// bound (recognize.go): a JSON document nested past defaultMaxDepth fails
// with DepthExceededError rather than overflowing the stack. This matters
// because JSON parsing is the very first step of JSONToPickle, ahead of
// Unrecognize's own bound.
func readValue(dec *json.Decoder, depth int) (interface{}, error) {
	if depth <= 0 {
		return nil, &DepthExceededError{Limit: defaultMaxDepth}
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, &BadJSONError{Reason: err.Error()}
	}
	return readFromToken(dec, tok, depth)
}

func readFromToken(dec *json.Decoder, tok json.Token, depth int) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		if depth <= 0 {
			return nil, &DepthExceededError{Limit: defaultMaxDepth}
		}
		switch t {
		case '[':
			return readArray(dec, depth)
		case '{':
			return readObject(dec, depth)
		}
		return nil, &BadJSONError{Reason: fmt.Sprintf("unexpected delimiter %q", t)}
	case json.Number:
		return numberValue(string(t))
	case string:
		return t, nil
	case bool:
		return t, nil
	case nil:
		return None{}, nil
	}
	return nil, &BadJSONError{Reason: fmt.Sprintf("unexpected token %v", tok)}
}

// numberValue preserves integer/float disposition by the presence of '.'
// or an exponent in the source text (spec.md §4.5), rather than by value —
// an integral float like "42.0" must read back as a float, not an int.
func numberValue(s string) (interface{}, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &BadJSONError{Reason: "malformed number " + s}
		}
		return f, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &BadJSONError{Reason: "malformed integer " + s}
	}
	return n, nil
}

func readArray(dec *json.Decoder, depth int) ([]interface{}, error) {
	out := []interface{}{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, &BadJSONError{Reason: err.Error()}
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return out, nil
		}
		v, err := readFromToken(dec, tok, depth-1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// readObject reads all of a JSON object's (key, decoded value) pairs
// first, then dispatches: a single reserved-marker key (or one of the
// fixed allowed marker pairs) builds the corresponding value-model variant;
// any mix of marker and non-marker keys is MixedMarkerError; an unrecognized
// "@"-prefixed key is UnknownMarkerError; otherwise a plain ordered Dict.
func readObject(dec *json.Decoder, depth int) (interface{}, error) {
	type rawEntry struct {
		key string
		val interface{}
	}
	var entries []rawEntry
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, &BadJSONError{Reason: err.Error()}
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &BadJSONError{Reason: "object key is not a string"}
		}
		val, err := readValue(dec, depth-1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, rawEntry{key, val})
	}

	var markerKeys, plainKeys []string
	byKey := map[string]interface{}{}
	for _, e := range entries {
		byKey[e.key] = e.val
		if strings.HasPrefix(e.key, "@") {
			markerKeys = append(markerKeys, e.key)
		} else {
			plainKeys = append(plainKeys, e.key)
		}
	}

	if len(markerKeys) == 0 {
		d := NewDictWithSizeHint(len(entries))
		for _, e := range entries {
			d.Set(e.key, e.val)
		}
		return d, nil
	}

	for _, k := range markerKeys {
		if !reservedMarkers[k] {
			return nil, &UnknownMarkerError{Key: k}
		}
	}
	if len(plainKeys) > 0 {
		return nil, &MixedMarkerError{Key: markerKeys[0]}
	}

	if len(markerKeys) > 1 {
		if !isAllowedMarkerPair(markerKeys) {
			return nil, &BadMarkerShapeError{Key: strings.Join(markerKeys, ","), Reason: "unexpected marker combination"}
		}
	}

	return buildFromMarkers(byKey, markerKeys)
}

func isAllowedMarkerPair(keys []string) bool {
	if len(keys) != 2 {
		return false
	}
	for _, g := range markerGroups {
		if (keys[0] == g[0] && keys[1] == g[1]) || (keys[0] == g[1] && keys[1] == g[0]) {
			return true
		}
	}
	return false
}

func buildFromMarkers(byKey map[string]interface{}, keys []string) (interface{}, error) {
	has := func(k string) bool { _, ok := byKey[k]; return ok }

	switch {
	case has("@cls") && has("@s"):
		return readRecordMarker(byKey)
	case has("@dt"):
		return readDateTimeMarker(byKey, false)
	case has("@time"):
		return readDateTimeMarker(byKey, true)
	case has("@children") && has("@first"):
		return &BTreeChildren{Children: mustSlice(byKey["@children"]), First: byKey["@first"]}, nil
	}

	if len(keys) != 1 {
		return nil, &BadMarkerShapeError{Key: strings.Join(keys, ","), Reason: "unexpected marker combination"}
	}
	key := keys[0]
	v := byKey[key]
	switch key {
	case "@t":
		return Tuple(mustSlice(v)), nil
	case "@set":
		return Set(mustSlice(v)), nil
	case "@fset":
		return FrozenSet(mustSlice(v)), nil
	case "@b":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected base64 string"}
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, &BadMarkerShapeError{Key: key, Reason: "invalid base64"}
		}
		return Bytes(raw), nil
	case "@d":
		return readDictMarker(v)
	case "@bi":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected decimal string"}
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "malformed @bi integer"}
		}
		return n, nil
	case "@f":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected nan/inf/-inf string"}
		}
		switch s {
		case "nan":
			return math.NaN(), nil
		case "inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		}
		return nil, &BadMarkerShapeError{Key: key, Reason: "unrecognized @f value " + s}
	case "@g":
		items := mustSlice(v)
		if len(items) != 2 {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected [module, name]"}
		}
		mod, _ := items[0].(string)
		name, _ := items[1].(string)
		return Class{Module: mod, Name: name}, nil
	case "@ref":
		return readRefMarker(v)
	case "@reduce":
		return readReduceMarker(v)
	case "@date":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected date string"}
		}
		var y, m, d int
		if _, err := fmt.Sscanf(s, "%04d-%02d-%02d", &y, &m, &d); err != nil {
			return nil, &BadMarkerShapeError{Key: key, Reason: "malformed @date"}
		}
		return &Date{Year: y, Month: m, Day: d}, nil
	case "@td":
		items := mustSlice(v)
		if len(items) != 3 {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected [days, seconds, microseconds]"}
		}
		d, _ := asIntArg(items[0])
		s, _ := asIntArg(items[1])
		us, _ := asIntArg(items[2])
		return &Timedelta{Days: d, Seconds: s, Microseconds: us}, nil
	case "@dec":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected decimal text"}
		}
		return &Decimal{Text: s}, nil
	case "@uuid":
		s, ok := v.(string)
		if !ok {
			return nil, &BadMarkerShapeError{Key: key, Reason: "expected uuid text"}
		}
		id, err := parseUUIDString(s)
		if err != nil {
			return nil, &BadMarkerShapeError{Key: key, Reason: "malformed @uuid"}
		}
		return &UUID{ID: id}, nil
	case "@kv":
		items := mustSlice(v)
		pairs := make([][2]interface{}, 0, len(items))
		for _, it := range items {
			pair := mustSlice(it)
			if len(pair) != 2 {
				return nil, &BadMarkerShapeError{Key: key, Reason: "@kv entry is not a [key, value] pair"}
			}
			pairs = append(pairs, [2]interface{}{pair[0], pair[1]})
		}
		return &BTreeKV{Pairs: pairs}, nil
	case "@ks":
		return &BTreeKS{Keys: mustSlice(v)}, nil
	}
	return nil, &UnknownMarkerError{Key: key}
}

func mustSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}

func readDictMarker(v interface{}) (interface{}, error) {
	items := mustSlice(v)
	d := NewDictWithSizeHint(len(items))
	for _, it := range items {
		pair := mustSlice(it)
		if len(pair) != 2 {
			return nil, &BadMarkerShapeError{Key: "@d", Reason: "entry is not a [key, value] pair"}
		}
		d.Set(pair[0], pair[1])
	}
	return d, nil
}

func readRefMarker(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		oid, err := hexToBytes(x)
		if err != nil {
			return nil, &BadMarkerShapeError{Key: "@ref", Reason: "invalid hex oid"}
		}
		return Ref{Oid: oid}, nil
	case []interface{}:
		if len(x) != 2 {
			return nil, &BadMarkerShapeError{Key: "@ref", Reason: "expected [oid, classhint]"}
		}
		hexOid, _ := x[0].(string)
		classHint, _ := x[1].(string)
		oid, err := hexToBytes(hexOid)
		if err != nil {
			return nil, &BadMarkerShapeError{Key: "@ref", Reason: "invalid hex oid"}
		}
		return Ref{Oid: oid, ClassHint: classHint, HasClass: true}, nil
	}
	return nil, &BadMarkerShapeError{Key: "@ref", Reason: "expected string or [oid, classhint]"}
}

func hexToBytes(s string) (Bytes, error) {
	if len(s)%2 != 0 {
		return "", fmt.Errorf("odd-length hex string")
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		hi, ok1 := hexDigit(s[2*i])
		lo, ok2 := hexDigit(s[2*i+1])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid hex digit")
		}
		b[i] = hi<<4 | lo
	}
	return Bytes(b), nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func readReduceMarker(v interface{}) (interface{}, error) {
	d, ok := v.(Dict)
	if !ok {
		return nil, &BadMarkerShapeError{Key: "@reduce", Reason: "expected object"}
	}
	fv, ok := d.Get_("f")
	if !ok {
		return nil, &BadMarkerShapeError{Key: "@reduce", Reason: "missing \"f\""}
	}
	fParts := mustSlice(fv)
	if len(fParts) != 2 {
		return nil, &BadMarkerShapeError{Key: "@reduce", Reason: "\"f\" must be [module, name]"}
	}
	mod, _ := fParts[0].(string)
	name, _ := fParts[1].(string)

	r := &Reduce{Callable: Class{Module: mod, Name: name}}
	if av, ok := d.Get_("args"); ok {
		r.Args = Tuple(mustSlice(av))
	}
	if sv, ok := d.Get_("state"); ok {
		r.HasState = true
		r.State = sv
	}
	if lv, ok := d.Get_("li"); ok {
		r.ListItems = mustSlice(lv)
	}
	if dv, ok := d.Get_("di"); ok {
		if dd, ok := dv.(Dict); ok {
			r.HasDictItems = true
			r.DictItems = dd
		}
	}
	return r, nil
}

func readRecordMarker(byKey map[string]interface{}) (interface{}, error) {
	clsRaw := mustSlice(byKey["@cls"])
	if len(clsRaw) != 2 {
		return nil, &BadMarkerShapeError{Key: "@cls", Reason: "expected [module, name]"}
	}
	mod, _ := clsRaw[0].(string)
	name, _ := clsRaw[1].(string)
	return &Record{Class: Class{Module: mod, Name: name}, State: byKey["@s"]}, nil
}

// readDateTimeMarker handles both "@dt" (datetime) and "@time" (time); the
// payload differs only in whether a date part precedes the time part, and
// both carry the same optional "@tz"/inline-offset provenance.
func readDateTimeMarker(byKey map[string]interface{}, timeOnly bool) (interface{}, error) {
	key := "@dt"
	if timeOnly {
		key = "@time"
	}
	s, ok := byKey[key].(string)
	if !ok {
		return nil, &BadMarkerShapeError{Key: key, Reason: "expected ISO8601 string"}
	}

	s, offset, hasOffset := splitTrailingOffset(s)

	var tz *TZ
	if hasOffset {
		tz = &TZ{FixedOffset: offset}
	} else if tzv, ok := byKey["@tz"]; ok {
		t, err := parseTZMarker(tzv)
		if err != nil {
			return nil, err
		}
		tz = t
	}

	if timeOnly {
		h, mi, sec, us, err := parseISOTime(s)
		if err != nil {
			return nil, &BadMarkerShapeError{Key: key, Reason: err.Error()}
		}
		return &Time{Hour: h, Minute: mi, Second: sec, Microsecond: us, TZ: tz}, nil
	}
	datePart, timePart, found := strings.Cut(s, "T")
	if !found {
		return nil, &BadMarkerShapeError{Key: key, Reason: "missing 'T' separator"}
	}
	var y, mo, d int
	if _, err := fmt.Sscanf(datePart, "%04d-%02d-%02d", &y, &mo, &d); err != nil {
		return nil, &BadMarkerShapeError{Key: key, Reason: "malformed date part"}
	}
	h, mi, sec, us, err := parseISOTime(timePart)
	if err != nil {
		return nil, &BadMarkerShapeError{Key: key, Reason: err.Error()}
	}
	return &DateTime{Year: y, Month: mo, Day: d, Hour: h, Minute: mi, Second: sec, Microsecond: us, TZ: tz}, nil
}

func parseISOTime(s string) (h, m, sec, us int, err error) {
	main := s
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		main = s[:dot]
		frac := s[dot+1:]
		for len(frac) < 6 {
			frac += "0"
		}
		usVal, perr := strconv.Atoi(frac[:6])
		if perr != nil {
			return 0, 0, 0, 0, fmt.Errorf("malformed fractional seconds")
		}
		us = usVal
	}
	if _, serr := fmt.Sscanf(main, "%02d:%02d:%02d", &h, &m, &sec); serr != nil {
		return 0, 0, 0, 0, fmt.Errorf("malformed time")
	}
	return h, m, sec, us, nil
}

// splitTrailingOffset strips a "+HH:MM"/"-HH:MM" suffix, if present, from
// an ISO8601 string and returns it as a Timedelta offset.
func splitTrailingOffset(s string) (rest string, offset *Timedelta, ok bool) {
	if len(s) < 6 {
		return s, nil, false
	}
	tail := s[len(s)-6:]
	if tail[3] != ':' || (tail[0] != '+' && tail[0] != '-') {
		return s, nil, false
	}
	h, err1 := strconv.Atoi(tail[1:3])
	m, err2 := strconv.Atoi(tail[4:6])
	if err1 != nil || err2 != nil {
		return s, nil, false
	}
	total := h*3600 + m*60
	if tail[0] == '-' {
		total = -total
	}
	return s[:len(s)-6], &Timedelta{Seconds: total}, true
}

func parseTZMarker(v interface{}) (*TZ, error) {
	d, ok := v.(Dict)
	if !ok {
		return nil, &BadMarkerShapeError{Key: "@tz", Reason: "expected object"}
	}
	if zv, ok := d.Get_("zoneinfo"); ok {
		if s, ok := zv.(string); ok {
			return &TZ{ZoneInfo: s}, nil
		}
	}
	if nv, ok := d.Get_("name"); ok {
		if s, ok := nv.(string); ok {
			return &TZ{Name: s}, nil
		}
	}
	return nil, &BadMarkerShapeError{Key: "@tz", Reason: "expected \"name\" or \"zoneinfo\""}
}
