package types

// KeyValue is the intermediate key-value pair produced by mappers and the
// output pair produced by reducers.
type KeyValue[K, V any] struct {
	Key   K `json:"k"`
	Value V `json:"v"`
}

// Pair builds a KeyValue.
func Pair[K, V any](key K, value V) KeyValue[K, V] {
	return KeyValue[K, V]{Key: key, Value: value}
}

// Record is one line read from an input split.
type Record struct {
	Split int    // index of the split the line came from
	Line  int64  // 1-based line number inside the split
	Text  string // line contents without the trailing newline
}

// Null is the value type for jobs that only care about keys.
// Sinks write the key alone when the value is Null.
type Null struct{}

func (Null) String() string { return "" }
