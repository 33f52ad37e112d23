package jsvalue

// Source provides positional arguments to a Reader. At is called at most
// once per index.
type Source interface {
	Len() int
	At(i int) Value
}

type valuesSource []Value

func (s valuesSource) Len() int       { return len(s) }
func (s valuesSource) At(i int) Value { return s[i] }

// Reader is a lazily converted sequence of call arguments. Arguments are
// converted from the Source on first access.
//
// A Reader is not safe for concurrent use. Sources bound to a script runtime
// must only be read on that runtime's dispatcher; call Materialize before
// handing the Reader to another dispatcher.
type Reader struct {
	src    Source
	cache  []Value
	loaded []bool
	pos    int
}

// NewReader returns a Reader over src.
func NewReader(src Source) *Reader {
	n := 0
	if src != nil {
		n = src.Len()
	}
	return &Reader{src: src, cache: make([]Value, n), loaded: make([]bool, n)}
}

// ReaderOf returns a Reader over already converted values.
func ReaderOf(values ...Value) *Reader {
	r := NewReader(valuesSource(values))
	r.Materialize()
	return r
}

// Len returns the number of arguments.
func (r *Reader) Len() int { return len(r.cache) }

// At returns argument i, or null if out of range.
func (r *Reader) At(i int) Value {
	if i < 0 || i >= len(r.cache) {
		return Null()
	}
	if !r.loaded[i] {
		r.cache[i] = r.src.At(i)
		r.loaded[i] = true
	}
	return r.cache[i]
}

// Next returns the next argument and advances, reporting false when the
// arguments are exhausted.
func (r *Reader) Next() (Value, bool) {
	if r.pos >= len(r.cache) {
		return Null(), false
	}
	v := r.At(r.pos)
	r.pos++
	return v, true
}

// Remaining returns the number of arguments Next has yet to return.
func (r *Reader) Remaining() int { return len(r.cache) - r.pos }

// Materialize converts every remaining argument and detaches the Reader from
// its Source.
func (r *Reader) Materialize() {
	for i := range r.cache {
		r.At(i)
	}
	r.src = nil
}

// Values converts and returns all arguments.
func (r *Reader) Values() []Value {
	r.Materialize()
	return r.cache
}
