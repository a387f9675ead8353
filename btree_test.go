package codec

import "testing"

func TestFlattenBucketState(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOBucket"}
	leaf := Tuple{"a", int64(1), "b", int64(2)}
	state := Tuple{leaf}

	flat, ok := FlattenBTreeState(cls, state)
	if !ok {
		t.Fatalf("FlattenBTreeState(%#v) ok=false", state)
	}
	kv, ok := flat.(*BTreeKV)
	if !ok {
		t.Fatalf("FlattenBTreeState(%#v) = %T; want *BTreeKV", state, flat)
	}
	if len(kv.Pairs) != 2 || kv.Pairs[0][0] != "a" || kv.Pairs[1][0] != "b" {
		t.Errorf("flattened pairs = %#v", kv.Pairs)
	}

	back, ok := UnflattenBTreeState(cls, kv)
	if !ok {
		t.Fatalf("UnflattenBTreeState ok=false")
	}
	if !deepEqual(back, state) {
		t.Errorf("UnflattenBTreeState(Flatten(%#v)) = %#v; want original", state, back)
	}
}

func TestFlattenTreeState(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOBTree"}
	// root with one inline bucket: 3 levels of singleton wrapping around
	// the flat kv leaf.
	leaf := Tuple{"x", int64(10), "y", int64(20)}
	state := Tuple{Tuple{Tuple{leaf}}}

	flat, ok := FlattenBTreeState(cls, state)
	if !ok {
		t.Fatalf("FlattenBTreeState(tree) ok=false")
	}
	kv, ok := flat.(*BTreeKV)
	if !ok {
		t.Fatalf("FlattenBTreeState(tree) = %T; want *BTreeKV", flat)
	}
	if len(kv.Pairs) != 2 {
		t.Fatalf("flattened tree pairs = %#v; want 2 pairs", kv.Pairs)
	}

	back, ok := UnflattenBTreeState(cls, kv)
	if !ok {
		t.Fatalf("UnflattenBTreeState(tree) ok=false")
	}
	if !deepEqual(back, state) {
		t.Errorf("UnflattenBTreeState(Flatten(tree)) = %#v; want %#v", back, state)
	}
}

func TestFlattenTreeSetState(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOTreeSet"}
	leaf := Tuple{"k1", "k2", "k3"}
	state := Tuple{Tuple{Tuple{leaf}}}

	flat, ok := FlattenBTreeState(cls, state)
	if !ok {
		t.Fatalf("FlattenBTreeState(treeset) ok=false")
	}
	ks, ok := flat.(*BTreeKS)
	if !ok {
		t.Fatalf("FlattenBTreeState(treeset) = %T; want *BTreeKS", flat)
	}
	if len(ks.Keys) != 3 {
		t.Errorf("flattened treeset keys = %#v; want 3", ks.Keys)
	}

	back, ok := UnflattenBTreeState(cls, ks)
	if !ok {
		t.Fatalf("UnflattenBTreeState(treeset) ok=false")
	}
	if !deepEqual(back, state) {
		t.Errorf("UnflattenBTreeState(Flatten(treeset)) = %#v; want %#v", back, state)
	}
}

func TestFlattenLargeTreeChildren(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOBTree"}
	children := Tuple{
		Ref{Oid: Bytes("\x00\x00\x00\x00\x00\x00\x00\x01")},
		"m",
		Ref{Oid: Bytes("\x00\x00\x00\x00\x00\x00\x00\x02")},
	}
	first := Ref{Oid: Bytes("\x00\x00\x00\x00\x00\x00\x00\x01")}
	state := Tuple{children, first}

	flat, ok := FlattenBTreeState(cls, state)
	if !ok {
		t.Fatalf("FlattenBTreeState(large tree) ok=false")
	}
	bc, ok := flat.(*BTreeChildren)
	if !ok {
		t.Fatalf("FlattenBTreeState(large tree) = %T; want *BTreeChildren", flat)
	}
	if len(bc.Children) != 3 {
		t.Errorf("flattened children = %#v; want 3 entries", bc.Children)
	}
	if bc.First != first {
		t.Errorf("flattened First = %#v; want %#v", bc.First, first)
	}

	back, ok := UnflattenBTreeState(cls, bc)
	if !ok {
		t.Fatalf("UnflattenBTreeState(large tree) ok=false")
	}
	if !deepEqual(back, state) {
		t.Errorf("UnflattenBTreeState(Flatten(large tree)) = %#v; want %#v", back, state)
	}
}

func TestFlattenLengthPassesThrough(t *testing.T) {
	cls := Class{Module: "BTrees.Length", Name: "Length"}
	if _, ok := FlattenBTreeState(cls, int64(42)); ok {
		t.Errorf("FlattenBTreeState(Length) unexpectedly matched a non-tuple state")
	}
}

func TestFlattenEmptyBTreeState(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOBTree"}
	if _, ok := FlattenBTreeState(cls, None{}); ok {
		t.Errorf("FlattenBTreeState(empty tree state=None) unexpectedly matched")
	}
	if _, ok := FlattenBTreeState(cls, nil); ok {
		t.Errorf("FlattenBTreeState(empty tree state=nil) unexpectedly matched")
	}
}

func TestRecognizeStandaloneBTreeReduce(t *testing.T) {
	cls := Class{Module: "BTrees.OOBTree", Name: "OOBTree"}
	leaf := Tuple{"a", int64(1)}
	r := &Reduce{
		Callable: cls,
		Args:     Tuple{},
		HasState: true,
		State:    Tuple{Tuple{Tuple{Tuple{leaf}}}},
	}

	got, err := Recognize(r, 0)
	if err != nil {
		t.Fatalf("Recognize(standalone BTree) failed: %s", err)
	}
	rec, ok := got.(*Record)
	if !ok {
		t.Fatalf("Recognize(standalone BTree) = %T; want *Record", got)
	}
	if rec.Class != cls {
		t.Errorf("Recognize(standalone BTree).Class = %#v; want %#v", rec.Class, cls)
	}
	kv, ok := rec.State.(*BTreeKV)
	if !ok {
		t.Fatalf("Recognize(standalone BTree).State = %T; want *BTreeKV", rec.State)
	}
	if len(kv.Pairs) != 1 || kv.Pairs[0][0] != "a" {
		t.Errorf("Recognize(standalone BTree).State pairs = %#v", kv.Pairs)
	}
}

func TestRecognizeBTreeLengthAsRecordWithoutFlatten(t *testing.T) {
	cls := Class{Module: "BTrees.Length", Name: "Length"}
	r := &Reduce{
		Callable: cls,
		Args:     Tuple{},
		HasState: true,
		State:    int64(7),
	}

	got, err := Recognize(r, 0)
	if err != nil {
		t.Fatalf("Recognize(Length) failed: %s", err)
	}
	rec, ok := got.(*Record)
	if !ok {
		t.Fatalf("Recognize(Length) = %T; want *Record", got)
	}
	if rec.State != int64(7) {
		t.Errorf("Recognize(Length).State = %#v; want 7", rec.State)
	}
}
