package codec

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Recognize turns a decoder's raw Reduce/Class output for a handful of
// well-known stdlib/third-party types into the corresponding value-model
// type (DateTime, Date, Time, Timedelta, Decimal, UUID, Set, FrozenSet).
// Values that are not one of the known types pass through unchanged.
//
// Recognize walks v recursively, bounded by maxDepth (0 selects the
// package default).
func Recognize(v interface{}, maxDepth int) (interface{}, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return recognizeAt(v, maxDepth)
}

func recognizeAt(v interface{}, depth int) (interface{}, error) {
	if depth <= 0 {
		return nil, &DepthExceededError{Limit: defaultMaxDepth}
	}

	switch x := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			r, err := recognizeAt(e, depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			r, err := recognizeAt(e, depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case Dict:
		out := NewDictWithSizeHint(x.Len())
		var err error
		x.Iter()(func(k, val interface{}) bool {
			var rk, rv interface{}
			rk, err = recognizeAt(k, depth-1)
			if err != nil {
				return false
			}
			rv, err = recognizeAt(val, depth-1)
			if err != nil {
				return false
			}
			out.Set(rk, rv)
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	case *Reduce:
		return recognizeReduce(x, depth)

	default:
		return v, nil
	}
}

func recognizeReduce(r *Reduce, depth int) (interface{}, error) {
	key := r.Callable.Module + "." + r.Callable.Name
	switch key {
	case "datetime.datetime":
		return recognizeDateTime(r)
	case "datetime.date":
		return recognizeDate(r)
	case "datetime.time":
		return recognizeTime(r)
	case "datetime.timedelta":
		return recognizeTimedelta(r)
	case "decimal.Decimal":
		return recognizeDecimal(r)
	case "uuid.UUID":
		return recognizeUUID(r)
	case "__builtin__.set", "builtins.set":
		return recognizeSet(r, depth, false)
	case "__builtin__.frozenset", "builtins.frozenset":
		return recognizeSet(r, depth, true)
	}

	if isBTreesModule(r.Callable) && len(r.Args) == 0 {
		return recognizeBTreeReduce(r, depth)
	}

	// recurse into args/state so known types nested inside unrecognized
	// Reduce values (e.g. an application object referencing a datetime
	// field) are still picked up.
	args := make(Tuple, len(r.Args))
	for i, a := range r.Args {
		ra, err := recognizeAt(a, depth-1)
		if err != nil {
			return nil, err
		}
		args[i] = ra
	}
	out := &Reduce{Callable: r.Callable, Args: args, HasState: r.HasState, ListItems: r.ListItems, HasDictItems: r.HasDictItems, DictItems: r.DictItems}
	if r.HasState {
		st, err := recognizeAt(r.State, depth-1)
		if err != nil {
			return nil, err
		}
		out.State = st
	}
	return out, nil
}

// recognizeBTreeReduce handles a BTrees-library instance pickled on its
// own (REDUCE/NEWOBJ + BUILD, rather than the two-pickle ZODB record
// shape): it is presented the same way a record's class/state pair is —
// {"@cls": [...], "@s": ...} — with the BTree flattener applied to the
// state where its shape matches.
func recognizeBTreeReduce(r *Reduce, depth int) (interface{}, error) {
	if !r.HasState {
		return &Record{Class: r.Callable, State: nil}, nil
	}
	state, err := recognizeAt(r.State, depth-1)
	if err != nil {
		return nil, err
	}
	if flat, ok := FlattenBTreeState(r.Callable, state); ok {
		state = flat
	}
	return &Record{Class: r.Callable, State: state}, nil
}

func recognizeDateTime(r *Reduce) (interface{}, error) {
	if len(r.Args) < 1 {
		return r, nil
	}
	payload, ok := r.Args[0].(Bytes)
	if !ok {
		if s, ok := r.Args[0].(string); ok {
			payload = Bytes(s)
		} else {
			return r, nil
		}
	}
	if len(payload) != 10 {
		return r, nil
	}
	b := []byte(payload)
	year := int(b[0])<<8 | int(b[1])
	month := int(b[2])
	day := int(b[3])
	hour := int(b[4])
	minute := int(b[5])
	second := int(b[6])
	micro := int(b[7])<<16 | int(b[8])<<8 | int(b[9])

	dt := &DateTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second, Microsecond: micro}
	if len(r.Args) >= 2 {
		tz, err := recognizeTZArg(r.Args[1])
		if err != nil {
			return nil, err
		}
		dt.TZ = tz
	}
	return dt, nil
}

func recognizeDate(r *Reduce) (interface{}, error) {
	if len(r.Args) < 1 {
		return r, nil
	}
	payload, ok := asBytesArg(r.Args[0])
	if !ok || len(payload) != 4 {
		return r, nil
	}
	year := int(payload[0])<<8 | int(payload[1])
	return &Date{Year: year, Month: int(payload[2]), Day: int(payload[3])}, nil
}

func recognizeTime(r *Reduce) (interface{}, error) {
	if len(r.Args) < 1 {
		return r, nil
	}
	payload, ok := asBytesArg(r.Args[0])
	if !ok || len(payload) != 6 {
		return r, nil
	}
	t := &Time{
		Hour:        int(payload[0]),
		Minute:      int(payload[1]),
		Second:      int(payload[2]),
		Microsecond: int(payload[3])<<16 | int(payload[4])<<8 | int(payload[5]),
	}
	if len(r.Args) >= 2 {
		tz, err := recognizeTZArg(r.Args[1])
		if err != nil {
			return nil, err
		}
		t.TZ = tz
	}
	return t, nil
}

func recognizeTimedelta(r *Reduce) (interface{}, error) {
	if len(r.Args) < 3 {
		return r, nil
	}
	days, ok1 := asIntArg(r.Args[0])
	secs, ok2 := asIntArg(r.Args[1])
	micros, ok3 := asIntArg(r.Args[2])
	if !ok1 || !ok2 || !ok3 {
		return r, nil
	}
	return &Timedelta{Days: days, Seconds: secs, Microseconds: micros}, nil
}

func recognizeDecimal(r *Reduce) (interface{}, error) {
	if len(r.Args) < 1 {
		return r, nil
	}
	s, ok := r.Args[0].(string)
	if !ok {
		return r, nil
	}
	return &Decimal{Text: s}, nil
}

func recognizeUUID(r *Reduce) (interface{}, error) {
	// uuid.UUID(bytes=...) is pickled as a Reduce whose sole arg, via
	// __reduce__, is a 1-tuple holding a dict {"bytes": <16 raw bytes>, ...}
	// or, more commonly, the int form {"int": <128-bit integer>}.
	if r.HasState {
		if d, ok := r.State.(Dict); ok {
			if v, ok := d.Get_("int"); ok {
				if id, ok := intArgToUUID(v); ok {
					return &UUID{ID: id}, nil
				}
			}
		}
	}
	for _, a := range r.Args {
		if d, ok := a.(Dict); ok {
			if v, ok := d.Get_("int"); ok {
				if id, ok := intArgToUUID(v); ok {
					return &UUID{ID: id}, nil
				}
			}
			if v, ok := d.Get_("bytes"); ok {
				if b, ok := asBytesArg(v); ok && len(b) == 16 {
					id, err := uuid.FromBytes(b)
					if err == nil {
						return &UUID{ID: id}, nil
					}
				}
			}
		}
	}
	return r, nil
}

func intArgToUUID(v interface{}) (uuid.UUID, bool) {
	n, ok := asBigIntArg(v)
	if !ok {
		return uuid.UUID{}, false
	}
	b := n.Bytes()
	var buf [16]byte
	copy(buf[16-len(b):], b)
	id, err := uuid.FromBytes(buf[:])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

func recognizeSet(r *Reduce, depth int, frozen bool) (interface{}, error) {
	if len(r.Args) != 1 {
		return r, nil
	}
	items, ok := r.Args[0].([]interface{})
	if !ok {
		if t, ok := r.Args[0].(Tuple); ok {
			items = []interface{}(t)
		} else {
			return r, nil
		}
	}
	out := make([]interface{}, len(items))
	for i, it := range items {
		rv, err := recognizeAt(it, depth-1)
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	if frozen {
		return FrozenSet(out), nil
	}
	return Set(out), nil
}

func recognizeTZArg(v interface{}) (*TZ, error) {
	switch x := v.(type) {
	case None:
		return nil, nil
	case *Reduce:
		key := x.Callable.Module + "." + x.Callable.Name
		switch key {
		case "datetime.timezone":
			if len(x.Args) >= 1 {
				if td, ok := x.Args[0].(*Timedelta); ok {
					return &TZ{FixedOffset: td}, nil
				}
				if rd, ok := x.Args[0].(*Reduce); ok && rd.Callable.Module == "datetime" && rd.Callable.Name == "timedelta" {
					td, err := recognizeTimedelta(rd)
					if err != nil {
						return nil, err
					}
					if tdv, ok := td.(*Timedelta); ok {
						return &TZ{FixedOffset: tdv}, nil
					}
				}
			}
			return &TZ{FixedOffset: &Timedelta{}}, nil
		case "pytz._UTC":
			return &TZ{Name: "UTC"}, nil
		}
		// pytz named zones pickle via _UTC()/_p or a tzinfo() call keyed
		// by zone name in args; zoneinfo zones pickle as
		// zoneinfo.ZoneInfo with the key as a string __reduce__ arg.
		if key == "zoneinfo.ZoneInfo" && len(x.Args) >= 1 {
			if name, ok := x.Args[0].(string); ok {
				return &TZ{ZoneInfo: name}, nil
			}
		}
		if len(x.Args) >= 1 {
			if name, ok := x.Args[0].(string); ok {
				return &TZ{Name: name}, nil
			}
		}
		return nil, fmt.Errorf("codec: unrecognized tzinfo %s", key)
	case Class:
		if x.Module == "pytz" && x.Name == "UTC" {
			return &TZ{Name: "UTC"}, nil
		}
		return &TZ{Name: x.Module + "." + x.Name}, nil
	}
	return nil, fmt.Errorf("codec: unrecognized tzinfo value %T", v)
}

func asBytesArg(v interface{}) ([]byte, bool) {
	switch x := v.(type) {
	case Bytes:
		return []byte(x), true
	case string:
		return []byte(x), true
	}
	return nil, false
}

func asIntArg(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int:
		return x, true
	case *big.Int:
		if x.IsInt64() {
			return int(x.Int64()), true
		}
		return 0, false
	}
	return 0, false
}

func asBigIntArg(v interface{}) (*big.Int, bool) {
	switch x := v.(type) {
	case *big.Int:
		return x, true
	case int64:
		return big.NewInt(x), true
	case int:
		return big.NewInt(int64(x)), true
	}
	return nil, false
}
