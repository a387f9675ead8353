// Package codec implements a bidirectional transcoder between Python's
// pickle serialization format and a canonical JSON representation, for
// pickle streams that come out of a ZODB (http://zodb.org) object
// database.
//
// ZODB stores each persistent object as a record made of two concatenated
// pickles: one identifying the object's class, one holding its state.
// Records can contain persistent references to other records, BTree
// library state (nested-tuple ordered maps), and a handful of known
// stdlib/third-party types (datetime, Decimal, UUID, set) that pickle and
// JSON represent very differently. This package handles all four layers:
//
//   - a streaming pickle Decoder and a byte-compatible Encoder (this file's
//     table below maps Python types to the Go types they decode to/encode
//     from)
//   - a Known-Type Recognizer that turns the decoder's raw Reduce/Class
//     output for datetime/date/time/timedelta/Decimal/UUID/set/frozenset
//     into the corresponding Go value-model type, and back
//   - a BTree flattener/unflattener that collapses/reconstructs the
//     BTrees library's nested-tuple bucket/tree shapes
//   - Record framing, joining/splitting the two pickles in a ZODB record
//
// None of this package ever imports or instantiates a class: decoding a
// pickle never runs Python code, even when the pickle is malicious —
// contrary to Python's own pickle.loads.
//
// The six public entry points are PickleToJSON, JSONToPickle,
// PickleToDict, DictToPickle, DecodeZODBRecord and EncodeZODBRecord (see
// api.go and record.go). Everything else in this package is exported for callers that
// want to work with the decoded value model directly instead of going
// through JSON or dict.
//
// Type mapping
//
//	Python	   Go
//	------	   --
//
//	None	↔  codec.None
//	bool	↔  bool
//	int	↔  int64
//	int	←  int, intX, uintX
//	long	↔  *big.Int
//	float	↔  float64
//	float	←  floatX
//	list	↔  []interface{}
//	tuple	↔  codec.Tuple
//	dict	↔  codec.Dict
//	set	↔  codec.Set
//	frozenset ↔  codec.FrozenSet
//
//	str        ↔  string
//	bytes      ↔  codec.Bytes
//
// Python classes and instances that are not one of the known/BTree types
// are mapped to Class and Reduce, for example:
//
//	Python				Go
//	------	   			--
//
//	decimal.Decimal            ↔    (recognized: see Decimal)
//	some_module.Widget         ↔    codec.Class{"some_module", "Widget"}
//	some_module.Widget(1, 2)   ↔    codec.Reduce{
//						Callable: codec.Class{"some_module", "Widget"},
//						Args:     codec.Tuple{1, 2},
//					}
//
// Persistent references
//
// When the decoder finds a persistent reference — ZODB's mechanism for one
// on-disk object to reference another — it represents it with Ref, giving
// the referenced object's oid and, where the pickle carries one, the
// referenced object's class. See Ref and DecodeZODBRecord.
//
// Protocol
//
// The decoder accepts pickle protocols 0 through 5 (out-of-band buffers
// from protocol 5 are rejected, everything else is decoded). The encoder
// always produces protocol 3, the lowest protocol able to represent
// Python bytes unambiguously — this package has no configuration knob for
// protocol selection, unlike a general-purpose pickle library, because its
// own output only ever needs to round-trip through itself and through
// CPython's unpickler.
package codec
