package mapreduce

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"BatchMR/internal/types"
)

// spillHandle encodes spilled pairs. Msgpack keeps strings as raw bytes, so
// keys that are not valid UTF-8 come back byte for byte.
var spillHandle = &codec.MsgpackHandle{}

func encodePair[K, V any](kv types.KeyValue[K, V]) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, spillHandle).Encode(kv); err != nil {
		return nil, fmt.Errorf("failed to encode pair for spilling: %w", err)
	}
	return buf, nil
}

func decodePair[K, V any](data []byte) (types.KeyValue[K, V], error) {
	var kv types.KeyValue[K, V]
	if err := codec.NewDecoderBytes(data, spillHandle).Decode(&kv); err != nil {
		return kv, fmt.Errorf("failed to decode spilled pair: %w: %w", types.ErrIO, err)
	}
	return kv, nil
}
