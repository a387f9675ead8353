package codec

import "math/big"

// Unrecognize is Recognize's inverse: it walks v and rewrites DateTime,
// Date, Time, Timedelta, Decimal, UUID and BTrees-library Record values
// back into the Reduce form the Encoder knows how to emit. Set/FrozenSet
// need no such rewrite — they have dedicated pickle opcodes and the
// Encoder handles them directly.
func Unrecognize(v interface{}, maxDepth int) (interface{}, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return unrecognizeAt(v, maxDepth)
}

func unrecognizeAt(v interface{}, depth int) (interface{}, error) {
	if depth <= 0 {
		return nil, &DepthExceededError{Limit: defaultMaxDepth}
	}

	switch x := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			r, err := unrecognizeAt(e, depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case Tuple:
		out := make(Tuple, len(x))
		for i, e := range x {
			r, err := unrecognizeAt(e, depth-1)
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
			rk, err = unrecognizeAt(k, depth-1)
			if err != nil {
				return false
			}
			rv, err = unrecognizeAt(val, depth-1)
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
		return unrecognizeReduceFields(x, depth)
	case Reduce:
		u, err := unrecognizeReduceFields(&x, depth)
		if err != nil {
			return nil, err
		}
		return *u, nil

	case *DateTime:
		return unrecognizeDateTime(x)
	case DateTime:
		return unrecognizeDateTime(&x)
	case *Date:
		return unrecognizeDate(x)
	case Date:
		return unrecognizeDate(&x)
	case *Time:
		return unrecognizeTime(x)
	case Time:
		return unrecognizeTime(&x)
	case *Timedelta:
		return unrecognizeTimedelta(x), nil
	case Timedelta:
		return unrecognizeTimedelta(&x), nil
	case *Decimal:
		return &Reduce{Callable: Class{"decimal", "Decimal"}, Args: Tuple{x.Text}}, nil
	case Decimal:
		return &Reduce{Callable: Class{"decimal", "Decimal"}, Args: Tuple{x.Text}}, nil
	case *UUID:
		return unrecognizeUUID(x), nil
	case UUID:
		return unrecognizeUUID(&x), nil

	case *Record:
		return unrecognizeRecord(x, depth)
	case Record:
		return unrecognizeRecord(&x, depth)

	default:
		return v, nil
	}
}

func unrecognizeReduceFields(r *Reduce, depth int) (*Reduce, error) {
	args := make(Tuple, len(r.Args))
	for i, a := range r.Args {
		ra, err := unrecognizeAt(a, depth-1)
		if err != nil {
			return nil, err
		}
		args[i] = ra
	}
	out := &Reduce{Callable: r.Callable, Args: args, HasState: r.HasState, ListItems: r.ListItems, HasDictItems: r.HasDictItems, DictItems: r.DictItems}
	if r.HasState {
		st, err := unrecognizeAt(r.State, depth-1)
		if err != nil {
			return nil, err
		}
		out.State = st
	}
	return out, nil
}

func unrecognizeDateTime(dt *DateTime) (*Reduce, error) {
	payload := []byte{
		byte(dt.Year >> 8), byte(dt.Year),
		byte(dt.Month), byte(dt.Day),
		byte(dt.Hour), byte(dt.Minute), byte(dt.Second),
		byte(dt.Microsecond >> 16), byte(dt.Microsecond >> 8), byte(dt.Microsecond),
	}
	r := &Reduce{Callable: Class{"datetime", "datetime"}, Args: Tuple{Bytes(payload)}}
	if dt.TZ != nil {
		tz, err := unrecognizeTZ(dt.TZ)
		if err != nil {
			return nil, err
		}
		r.Args = append(r.Args, tz)
	}
	return r, nil
}

func unrecognizeDate(d *Date) (*Reduce, error) {
	payload := []byte{byte(d.Year >> 8), byte(d.Year), byte(d.Month), byte(d.Day)}
	return &Reduce{Callable: Class{"datetime", "date"}, Args: Tuple{Bytes(payload)}}, nil
}

func unrecognizeTime(t *Time) (*Reduce, error) {
	payload := []byte{
		byte(t.Hour), byte(t.Minute), byte(t.Second),
		byte(t.Microsecond >> 16), byte(t.Microsecond >> 8), byte(t.Microsecond),
	}
	r := &Reduce{Callable: Class{"datetime", "time"}, Args: Tuple{Bytes(payload)}}
	if t.TZ != nil {
		tz, err := unrecognizeTZ(t.TZ)
		if err != nil {
			return nil, err
		}
		r.Args = append(r.Args, tz)
	}
	return r, nil
}

func unrecognizeTimedelta(td *Timedelta) *Reduce {
	return &Reduce{
		Callable: Class{"datetime", "timedelta"},
		Args:     Tuple{int64(td.Days), int64(td.Seconds), int64(td.Microseconds)},
	}
}

func unrecognizeUUID(u *UUID) *Reduce {
	b := u.ID[:]
	n := new(big.Int).SetBytes(b)
	state := NewDictWithSizeHint(1)
	state.Set("int", n)
	return &Reduce{
		Callable: Class{"uuid", "UUID"},
		Args:     Tuple{None{}},
		HasState: true,
		State:    state,
	}
}

// unrecognizeTZ reconstructs the tzinfo Reduce a TZ's provenance came from.
func unrecognizeTZ(tz *TZ) (interface{}, error) {
	switch {
	case tz.FixedOffset != nil:
		return &Reduce{
			Callable: Class{"datetime", "timezone"},
			Args:     Tuple{unrecognizeTimedelta(tz.FixedOffset)},
		}, nil
	case tz.Name == "UTC":
		return &Reduce{Callable: Class{"pytz", "_UTC"}, Args: Tuple{}}, nil
	case tz.Name != "":
		return &Reduce{Callable: Class{"pytz", "_p"}, Args: Tuple{tz.Name}}, nil
	case tz.ZoneInfo != "":
		return &Reduce{Callable: Class{"zoneinfo", "ZoneInfo"}, Args: Tuple{tz.ZoneInfo}}, nil
	}
	return None{}, nil
}

// unrecognizeRecord turns any Record, whatever its class, back into a
// Reduce ready for the Encoder (the class as callable, no args, the state
// attached for BUILD), applying the BTree unflattener to its state first.
func unrecognizeRecord(rec *Record, depth int) (interface{}, error) {
	state := rec.State
	if unflat, ok := UnflattenBTreeState(rec.Class, state); ok {
		state = unflat
	}
	state, err := unrecognizeAt(state, depth-1)
	if err != nil {
		return nil, err
	}
	return &Reduce{
		Callable: rec.Class,
		Args:     Tuple{},
		HasState: state != nil,
		State:    state,
	}, nil
}
