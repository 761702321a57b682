package object

import "fmt"

// Range is an immutable arithmetic progression of integers.
type Range struct {
	base
	start int64
	stop  int64
	step  int64
}

func (r *Range) Type() Type {
	return RANGE
}

func (r *Range) Start() int64 { return r.start }
func (r *Range) Stop() int64  { return r.stop }
func (r *Range) Step() int64  { return r.step }

func (r *Range) Inspect() string {
	if r.step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.start, r.stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.start, r.stop, r.step)
}

func (r *Range) String() string {
	return r.Inspect()
}

func (r *Range) Interface() interface{} {
	return []int64{r.start, r.stop, r.step}
}

func (r *Range) IsTruthy() bool {
	return r.Len() > 0
}

func (r *Range) Equals(other Object) bool {
	o, ok := other.(*Range)
	return ok && r.start == o.start && r.stop == o.stop && r.step == o.step
}

func (r *Range) Len() int {
	if r.step > 0 {
		if r.stop <= r.start {
			return 0
		}
		return int((r.stop - r.start + r.step - 1) / r.step)
	}
	if r.start <= r.stop {
		return 0
	}
	return int((r.start - r.stop - r.step - 1) / -r.step)
}

func (r *Range) GetItem(key Object) (Object, error) {
	idx, err := AsInt(key)
	if err != nil {
		return nil, err
	}
	i, err := normalizeIndex(idx, int64(r.Len()))
	if err != nil {
		return nil, err
	}
	return NewInt(r.start + i*r.step), nil
}

func (r *Range) SetItem(key, value Object) error {
	return TypeErrorf("range does not support item assignment")
}

func (r *Range) Contains(item Object) bool {
	i, ok := item.(*Int)
	if !ok {
		return false
	}
	v := i.value
	if r.step > 0 {
		return v >= r.start && v < r.stop && (v-r.start)%r.step == 0
	}
	return v <= r.start && v > r.stop && (r.start-v)%(-r.step) == 0
}

func (r *Range) Iter() Iterator {
	return &rangeIterator{r: r, pos: r.start}
}

// NewRange creates a range. A zero step fails.
func NewRange(start, stop, step int64) (*Range, error) {
	if step == 0 {
		return nil, ValueErrorf("range step must not be zero")
	}
	return &Range{start: start, stop: stop, step: step}, nil
}
