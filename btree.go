package codec

import "strings"

// FlattenBTreeState rewrites the characteristic nested-tuple state the
// BTrees library's __getstate__ produces into a BTreeKV/BTreeKS/
// BTreeChildren value, or returns (nil, false) if it does not match one of
// those shapes.
//
// The BTrees family encodes two independent things in its state shape:
// whether a node carries values (mapping: BTree/Bucket) or just keys (set:
// TreeSet/Set), and how many single-element tuple wrappers separate the
// flat leaf sequence from the top (three for a tree/treeset root with one
// inline bucket, one for a standalone bucket/set, none for a large tree's
// (children, first-bucket) pair). Only the wrapper count needs to be
// discovered by unwrapping; whether the leaf is kv or ks is read off cls's
// name, since the shapes are otherwise indistinguishable (an N-element
// flat tuple is equally a valid N/2-pair kv leaf or an N-key ks leaf).
func FlattenBTreeState(cls Class, state interface{}) (interface{}, bool) {
	if state == nil {
		return nil, false
	}
	if _, isNone := state.(None); isNone {
		return nil, false
	}
	top, ok := state.(Tuple)
	if !ok {
		return nil, false
	}
	if !looksLikeBTreeClass(cls) {
		return nil, false
	}

	isSet := strings.Contains(cls.Name, "Set")

	cur := top
	for len(cur) == 1 {
		inner, ok := cur[0].(Tuple)
		if !ok {
			break
		}
		cur = inner
	}

	if len(cur) == 2 {
		if children, ok := cur[0].(Tuple); ok && isChildArray(children) {
			return &BTreeChildren{
				Children: append([]interface{}{}, children...),
				First:    cur[1],
			}, true
		}
	}

	if isSet {
		return &BTreeKS{Keys: append([]interface{}{}, cur...)}, true
	}

	if len(cur)%2 != 0 {
		return nil, false
	}
	pairs := make([][2]interface{}, 0, len(cur)/2)
	for i := 0; i < len(cur); i += 2 {
		pairs = append(pairs, [2]interface{}{cur[i], cur[i+1]})
	}
	return &BTreeKV{Pairs: pairs}, true
}

// UnflattenBTreeState is FlattenBTreeState's exact inverse. cls's name
// suffix picks the wrapper depth: BTree/TreeSet gets four nesting levels
// counting the leaf tuple itself (tree root with one inline bucket),
// Bucket/Set gets two (standalone bucket/set). BTreeChildren never gets wrapped — a large tree's state is
// exactly the (children, first) pair, unwrapped.
func UnflattenBTreeState(cls Class, v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case *BTreeChildren:
		return Tuple{append(Tuple{}, toTuple(x.Children)...), x.First}, true

	case *BTreeKV:
		leaf := make(Tuple, 0, len(x.Pairs)*2)
		for _, kv := range x.Pairs {
			leaf = append(leaf, kv[0], kv[1])
		}
		return wrapBTreeLeaf(cls, leaf), true

	case *BTreeKS:
		leaf := append(Tuple{}, toTuple(x.Keys)...)
		return wrapBTreeLeaf(cls, leaf), true
	}
	return nil, false
}

// wrapBTreeLeaf re-wraps a flat leaf tuple with the nesting depth cls's
// name suffix calls for.
func wrapBTreeLeaf(cls Class, leaf Tuple) Tuple {
	depth := 1 // Bucket/Set: (leaf,)
	if strings.HasSuffix(cls.Name, "BTree") || strings.HasSuffix(cls.Name, "TreeSet") {
		depth = 3 // BTree/TreeSet: (((leaf,),),)
	}
	cur := leaf
	for i := 0; i < depth; i++ {
		cur = Tuple{cur}
	}
	return cur
}

func toTuple(s []interface{}) Tuple {
	t := make(Tuple, len(s))
	copy(t, s)
	return t
}

// isBTreesModule reports whether cls belongs to the BTrees library at all
// (mapping/set nodes and Length alike). recognize.go uses this to decide
// whether a Reduce should be presented as a {"@cls", "@s"} Record rather
// than the generic {"@reduce": …} form, even when (as for Length) the
// state shape itself does not need flattening.
func isBTreesModule(cls Class) bool {
	return strings.HasPrefix(cls.Module, "BTrees")
}

// looksLikeBTreeClass reports whether cls names one of the BTrees library's
// mapping/set node classes specifically (as opposed to Length, which
// stores a bare integer, not a nested-tuple state).
func looksLikeBTreeClass(cls Class) bool {
	if !isBTreesModule(cls) {
		return false
	}
	switch {
	case strings.HasSuffix(cls.Name, "BTree"):
		return true
	case strings.HasSuffix(cls.Name, "TreeSet"):
		return true
	case strings.HasSuffix(cls.Name, "Bucket"):
		return true
	case strings.HasSuffix(cls.Name, "Set"):
		return true
	}
	return false
}

// isChildArray reports whether t has the shape of a large BTree's children
// array: odd length, with a persistent Ref at every even index (the
// sub-tree/bucket pointers) and an ordinary separator key at every odd
// index.
func isChildArray(t Tuple) bool {
	if len(t) == 0 || len(t)%2 == 0 {
		return false
	}
	for i := 0; i < len(t); i += 2 {
		switch t[i].(type) {
		case Ref:
			continue
		default:
			return false
		}
	}
	return true
}
