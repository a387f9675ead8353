package codec

import (
	"strings"
	"testing"
)

func jsonRoundtrip(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := MarshalJSONValue(v)
	if err != nil {
		t.Fatalf("MarshalJSONValue(%#v) failed: %s", v, err)
	}
	got, err := UnmarshalJSONValue(data)
	if err != nil {
		t.Fatalf("UnmarshalJSONValue(%s) failed: %s", data, err)
	}
	return got
}

func TestJSONBytesMarker(t *testing.T) {
	data, err := MarshalJSONValue(Bytes("\x00\x01\x02"))
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if string(data) != `{"@b":"AAEC"}` {
		t.Errorf("MarshalJSONValue(Bytes) = %s; want %s", data, `{"@b":"AAEC"}`)
	}
	got := jsonRoundtrip(t, Bytes("\x00\x01\x02"))
	if got != Bytes("\x00\x01\x02") {
		t.Errorf("roundtrip(Bytes) = %#v", got)
	}
}

func TestJSONTupleMarker(t *testing.T) {
	data, err := MarshalJSONValue(Tuple{int64(1), int64(2), int64(3)})
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if string(data) != `{"@t":[1,2,3]}` {
		t.Errorf("MarshalJSONValue(Tuple) = %s; want %s", data, `{"@t":[1,2,3]}`)
	}
}

func TestJSONDateTimeNaive(t *testing.T) {
	dt := &DateTime{Year: 2025, Month: 6, Day: 15, Hour: 12, Minute: 30, Second: 45}
	data, err := MarshalJSONValue(dt)
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if string(data) != `{"@dt":"2025-06-15T12:30:45"}` {
		t.Errorf("MarshalJSONValue(naive datetime) = %s; want %s", data, `{"@dt":"2025-06-15T12:30:45"}`)
	}
}

func TestJSONFloatAlwaysHasDecimalPoint(t *testing.T) {
	data, err := MarshalJSONValue(3.0)
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if string(data) != "3.0" {
		t.Errorf("MarshalJSONValue(3.0) = %s; want 3.0", data)
	}
}

func TestJSONNumberDispositionOnRead(t *testing.T) {
	got, err := UnmarshalJSONValue([]byte("3"))
	if err != nil {
		t.Fatalf("UnmarshalJSONValue failed: %s", err)
	}
	if _, ok := got.(int64); !ok {
		t.Errorf("UnmarshalJSONValue(\"3\") = %T; want int64", got)
	}

	got, err = UnmarshalJSONValue([]byte("3.0"))
	if err != nil {
		t.Fatalf("UnmarshalJSONValue failed: %s", err)
	}
	if _, ok := got.(float64); !ok {
		t.Errorf("UnmarshalJSONValue(\"3.0\") = %T; want float64", got)
	}
}

func TestJSONPlainDictPreservesOrder(t *testing.T) {
	got, err := UnmarshalJSONValue([]byte(`{"z":1,"a":2,"m":3}`))
	if err != nil {
		t.Fatalf("UnmarshalJSONValue failed: %s", err)
	}
	d, ok := got.(Dict)
	if !ok {
		t.Fatalf("UnmarshalJSONValue(plain object) = %T; want Dict", got)
	}
	var keys []string
	d.Iter()(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	want := []string{"z", "a", "m"}
	if len(keys) != len(want) {
		t.Fatalf("key order = %v; want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key order = %v; want %v", keys, want)
			break
		}
	}
}

func TestJSONMixedMarkerError(t *testing.T) {
	_, err := UnmarshalJSONValue([]byte(`{"@t":[1,2],"extra":3}`))
	if err == nil {
		t.Fatal("UnmarshalJSONValue(mixed marker/plain) succeeded; want error")
	}
	if _, ok := err.(*MixedMarkerError); !ok {
		t.Errorf("UnmarshalJSONValue(mixed marker/plain) error = %T; want *MixedMarkerError", err)
	}
}

func TestJSONUnknownMarkerError(t *testing.T) {
	_, err := UnmarshalJSONValue([]byte(`{"@bogus":1}`))
	if err == nil {
		t.Fatal("UnmarshalJSONValue(unknown marker) succeeded; want error")
	}
	if _, ok := err.(*UnknownMarkerError); !ok {
		t.Errorf("UnmarshalJSONValue(unknown marker) error = %T; want *UnknownMarkerError", err)
	}
}

func TestJSONBadMarkerShapeError(t *testing.T) {
	_, err := UnmarshalJSONValue([]byte(`{"@t":[1,2],"@set":[3,4]}`))
	if err == nil {
		t.Fatal("UnmarshalJSONValue(disallowed marker combo) succeeded; want error")
	}
	if _, ok := err.(*BadMarkerShapeError); !ok {
		t.Errorf("UnmarshalJSONValue(disallowed marker combo) error = %T; want *BadMarkerShapeError", err)
	}
}

func TestJSONAllowedMarkerCombo(t *testing.T) {
	got, err := UnmarshalJSONValue([]byte(`{"@cls":["myapp.models","Widget"],"@s":{"a":1}}`))
	if err != nil {
		t.Fatalf("UnmarshalJSONValue(allowed combo) failed: %s", err)
	}
	rec, ok := got.(*Record)
	if !ok {
		t.Fatalf("UnmarshalJSONValue(@cls+@s) = %T; want *Record", got)
	}
	if rec.Class.Module != "myapp.models" || rec.Class.Name != "Widget" {
		t.Errorf("UnmarshalJSONValue(@cls+@s).Class = %#v", rec.Class)
	}
}

func TestJSONRefMarkerRoundtrip(t *testing.T) {
	ref := Ref{Oid: Bytes("\x00\x00\x00\x00\x00\x00\x00\x01")}
	got := jsonRoundtrip(t, ref)
	gotRef, ok := got.(Ref)
	if !ok {
		t.Fatalf("roundtrip(Ref) = %T; want Ref", got)
	}
	if gotRef.Oid != ref.Oid {
		t.Errorf("roundtrip(Ref).Oid = %#v; want %#v", gotRef.Oid, ref.Oid)
	}
}

func TestJSONBigIntMarker(t *testing.T) {
	data, err := MarshalJSONValue(bigIntFromString("123456789012345678901234567890"))
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if !strings.Contains(string(data), `"@bi"`) {
		t.Errorf("MarshalJSONValue(wide int) = %s; want @bi marker", data)
	}
}

func TestJSONSmallIntNoBigIntMarker(t *testing.T) {
	data, err := MarshalJSONValue(int64(42))
	if err != nil {
		t.Fatalf("MarshalJSONValue failed: %s", err)
	}
	if string(data) != "42" {
		t.Errorf("MarshalJSONValue(42) = %s; want 42", data)
	}
}

func TestJSONUUIDMarker(t *testing.T) {
	u := &UUID{}
	got := jsonRoundtrip(t, u)
	if _, ok := got.(*UUID); !ok {
		t.Fatalf("roundtrip(*UUID) = %T; want *UUID", got)
	}
}

func TestJSONDecimalMarker(t *testing.T) {
	dec := &Decimal{Text: "3.14159"}
	got := jsonRoundtrip(t, dec)
	gotDec, ok := got.(*Decimal)
	if !ok {
		t.Fatalf("roundtrip(*Decimal) = %T; want *Decimal", got)
	}
	if gotDec.Text != "3.14159" {
		t.Errorf("roundtrip(*Decimal).Text = %q; want %q", gotDec.Text, "3.14159")
	}
}

func deeplyNestedJSON(n int) []byte {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte('[')
	}
	for i := 0; i < n; i++ {
		b.WriteByte(']')
	}
	return []byte(b.String())
}

func TestJSONReadDepthExceeded(t *testing.T) {
	_, err := UnmarshalJSONValue(deeplyNestedJSON(defaultMaxDepth + 1))
	if _, ok := err.(*DepthExceededError); !ok {
		t.Fatalf("UnmarshalJSONValue(deeply nested) error = %#v; want *DepthExceededError", err)
	}
}

func TestJSONReadDepthWithinLimitSucceeds(t *testing.T) {
	_, err := UnmarshalJSONValue(deeplyNestedJSON(defaultMaxDepth - 1))
	if err != nil {
		t.Fatalf("UnmarshalJSONValue(within limit) failed: %s", err)
	}
}

func TestJSONWriteDepthExceeded(t *testing.T) {
	var v interface{} = []interface{}{}
	for i := 0; i < defaultMaxDepth+1; i++ {
		v = []interface{}{v}
	}
	_, err := MarshalJSONValue(v)
	if _, ok := err.(*DepthExceededError); !ok {
		t.Fatalf("MarshalJSONValue(deeply nested) error = %#v; want *DepthExceededError", err)
	}
}
