package codec

import "bytes"

// PickleToJSON decodes a pickle byte stream and serializes it to canonical
// JSON text.
func PickleToJSON(pickle []byte) ([]byte, error) {
	v, err := PickleToDict(pickle)
	if err != nil {
		return nil, err
	}
	return MarshalJSONValue(v)
}

// JSONToPickle parses canonical JSON text and encodes it as a protocol-3
// pickle byte stream.
func JSONToPickle(jsonText []byte) ([]byte, error) {
	v, err := UnmarshalJSONValue(jsonText)
	if err != nil {
		return nil, err
	}
	return DictToPickle(v)
}

// PickleToDict decodes a pickle byte stream into the in-memory value
// model — the same result PickleToJSON would serialize, without the JSON
// round trip.
func PickleToDict(pickle []byte) (interface{}, error) {
	raw, err := NewDecoder(bytes.NewReader(pickle)).Decode()
	if err != nil {
		return nil, err
	}
	return Recognize(raw, 0)
}

// DictToPickle is PickleToDict's inverse: it encodes a value-model tree
// (as produced by PickleToDict or parsed by UnmarshalJSONValue) into a
// protocol-3 pickle byte stream.
func DictToPickle(v interface{}) ([]byte, error) {
	unrec, err := Unrecognize(v, 0)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(unrec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
