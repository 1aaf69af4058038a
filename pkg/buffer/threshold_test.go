package buffer

import (
	"testing"
)

func TestReached(t *testing.T) {
	always := func([]int) bool { return true }
	never := func([]int) bool { return false }

	tests := []struct {
		name       string
		state      State[int]
		set        Thresholds[int]
		wantReason Reason
		wantHit    bool
	}{
		{
			name:    "nothing configured",
			state:   State[int]{Batch: []int{1, 2, 3}, SizeBytes: 100},
			set:     Thresholds[int]{},
			wantHit: false,
		},
		{
			name:       "item count reached",
			state:      State[int]{Batch: []int{1, 2, 3}},
			set:        Thresholds[int]{MaxItems: 3},
			wantReason: ReasonItems,
			wantHit:    true,
		},
		{
			name:    "item count below limit",
			state:   State[int]{Batch: []int{1, 2}},
			set:     Thresholds[int]{MaxItems: 3},
			wantHit: false,
		},
		{
			name:       "byte size reached",
			state:      State[int]{Batch: []int{1}, SizeBytes: 1024},
			set:        Thresholds[int]{MaxBytes: 1024},
			wantReason: ReasonBytes,
			wantHit:    true,
		},
		{
			name:       "bytes win over items",
			state:      State[int]{Batch: []int{1, 2}, SizeBytes: 10},
			set:        Thresholds[int]{MaxItems: 2, MaxBytes: 10},
			wantReason: ReasonBytes,
			wantHit:    true,
		},
		{
			name:       "items win over custom",
			state:      State[int]{Batch: []int{1, 2}},
			set:        Thresholds[int]{MaxItems: 2, Custom: []Predicate[int]{always}},
			wantReason: ReasonItems,
			wantHit:    true,
		},
		{
			name:       "second custom predicate",
			state:      State[int]{Batch: []int{1}},
			set:        Thresholds[int]{Custom: []Predicate[int]{never, always}},
			wantReason: ReasonCustom,
			wantHit:    true,
		},
		{
			name:    "nil predicate ignored",
			state:   State[int]{Batch: []int{1}},
			set:     Thresholds[int]{Custom: []Predicate[int]{nil}},
			wantHit: false,
		},
		{
			name:    "negative limits are unset",
			state:   State[int]{Batch: []int{1}, SizeBytes: 5},
			set:     Thresholds[int]{MaxItems: -1, MaxBytes: -1},
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hit := Reached(tt.state, tt.set)
			if hit != tt.wantHit {
				t.Errorf("Reached() hit = %v, want %v", hit, tt.wantHit)
			}
			if reason != tt.wantReason {
				t.Errorf("Reached() reason = %v, want %v", reason, tt.wantReason)
			}
		})
	}
}

func TestReached_ShortCircuits(t *testing.T) {
	calls := 0
	counting := func([]int) bool {
		calls++
		return true
	}

	set := Thresholds[int]{MaxItems: 1, Custom: []Predicate[int]{counting}}
	if _, hit := Reached(State[int]{Batch: []int{1}}, set); !hit {
		t.Fatal("Reached() hit = false, want true")
	}
	if calls != 0 {
		t.Errorf("custom predicate calls = %d, want 0", calls)
	}
}

func TestThresholds_Empty(t *testing.T) {
	tests := []struct {
		name string
		set  Thresholds[string]
		want bool
	}{
		{"zero value", Thresholds[string]{}, true},
		{"only nil predicates", Thresholds[string]{Custom: []Predicate[string]{nil}}, true},
		{"max items", Thresholds[string]{MaxItems: 1}, false},
		{"max bytes", Thresholds[string]{MaxBytes: 1}, false},
		{"custom", Thresholds[string]{Custom: []Predicate[string]{func([]string) bool { return false }}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThresholds_Ordered(t *testing.T) {
	set := Thresholds[int]{
		MaxItems: 5,
		MaxBytes: 100,
		Custom:   []Predicate[int]{func([]int) bool { return false }},
	}

	got := set.Ordered()
	want := []Kind{KindByteSize, KindItemCount, KindCustom}
	if len(got) != len(want) {
		t.Fatalf("len(Ordered()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind() != want[i] {
			t.Errorf("Ordered()[%d].Kind() = %v, want %v", i, got[i].Kind(), want[i])
		}
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindByteSize, "byte_size"},
		{KindItemCount, "item_count"},
		{KindCustom, "custom"},
		{Kind(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
