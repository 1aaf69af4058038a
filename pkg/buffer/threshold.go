package buffer

// Predicate is a user-defined threshold over the current batch.
// It must not retain or modify the slice it is given.
type Predicate[T any] func(batch []T) bool

// State is the buffer state a threshold is evaluated against.
type State[T any] struct {
	Batch     []T
	SizeBytes int64
}

// Kind identifies a threshold variant.
type Kind int

const (
	KindByteSize Kind = iota
	KindItemCount
	KindCustom
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindByteSize:
		return "byte_size"
	case KindItemCount:
		return "item_count"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Reason returns the flush reason reported when a threshold of this kind fires.
func (k Kind) Reason() Reason {
	switch k {
	case KindByteSize:
		return ReasonBytes
	case KindItemCount:
		return ReasonItems
	default:
		return ReasonCustom
	}
}

// Threshold is a single flush condition. Build one with ByteSize, ItemCount or Custom.
type Threshold[T any] struct {
	kind  Kind
	limit int64
	pred  Predicate[T]
}

// ByteSize fires once the accumulated byte size reaches n.
func ByteSize[T any](n int64) Threshold[T] {
	return Threshold[T]{kind: KindByteSize, limit: n}
}

// ItemCount fires once the batch holds n items.
func ItemCount[T any](n int) Threshold[T] {
	return Threshold[T]{kind: KindItemCount, limit: int64(n)}
}

// Custom fires when p returns true for the current batch.
func Custom[T any](p Predicate[T]) Threshold[T] {
	return Threshold[T]{kind: KindCustom, pred: p}
}

// Kind returns the threshold variant.
func (t Threshold[T]) Kind() Kind {
	return t.kind
}

// Reached reports whether the threshold holds for state.
func (t Threshold[T]) Reached(state State[T]) bool {
	switch t.kind {
	case KindByteSize:
		return t.limit > 0 && state.SizeBytes >= t.limit
	case KindItemCount:
		return t.limit > 0 && int64(len(state.Batch)) >= t.limit
	case KindCustom:
		return t.pred != nil && t.pred(state.Batch)
	default:
		return false
	}
}

// Thresholds is the set of size-like limits evaluated on every push.
// A zero or negative limit means the limit is not configured.
type Thresholds[T any] struct {
	MaxItems int
	MaxBytes int64
	Custom   []Predicate[T]
}

// Ordered returns the configured thresholds in evaluation order:
// byte size, item count, then custom predicates as supplied.
func (s Thresholds[T]) Ordered() []Threshold[T] {
	out := make([]Threshold[T], 0, 2+len(s.Custom))
	if s.MaxBytes > 0 {
		out = append(out, ByteSize[T](s.MaxBytes))
	}
	if s.MaxItems > 0 {
		out = append(out, ItemCount[T](s.MaxItems))
	}
	for _, p := range s.Custom {
		if p != nil {
			out = append(out, Custom(p))
		}
	}
	return out
}

// Empty reports whether no threshold is configured.
func (s Thresholds[T]) Empty() bool {
	if s.MaxBytes > 0 || s.MaxItems > 0 {
		return false
	}
	for _, p := range s.Custom {
		if p != nil {
			return false
		}
	}
	return true
}

// Reached evaluates set against state and returns the reason of the first
// threshold that holds. It has no side effects beyond calling custom predicates.
func Reached[T any](state State[T], set Thresholds[T]) (Reason, bool) {
	for _, t := range set.Ordered() {
		if t.Reached(state) {
			return t.Kind().Reason(), true
		}
	}
	return "", false
}
