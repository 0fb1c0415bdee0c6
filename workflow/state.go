package workflow

// State is the shared key/value record of a run. It is append-only by
// convention: steps never mutate it in place, they return a PartialUpdate
// that the executor merges. Merge and Project always copy, so a State handed
// to a branch can never observe later writes.
type State map[string]any

// PartialUpdate is the subset of fields a completed step writes back.
type PartialUpdate map[string]any

// Projection is the read-only slice of state a step is allowed to see.
type Projection map[string]any

// NewState copies seed into a fresh State.
func NewState(seed map[string]any) State {
	s := make(State, len(seed))
	for k, v := range seed {
		s[k] = v
	}
	return s
}

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new State with the update applied on top of s. Update
// values win on key collision (branches of a fan-out group write disjoint
// fields, so merge order across branches does not matter).
func (s State) Merge(update PartialUpdate) State {
	out := make(State, len(s)+len(update))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Project copies only the named fields into a Projection. Fields absent from
// the state are simply omitted.
func (s State) Project(fields ...string) Projection {
	p := make(Projection, len(fields))
	for _, f := range fields {
		if v, ok := s[f]; ok {
			p[f] = v
		}
	}
	return p
}

// GetString returns the field as a string, or "" when absent or another type.
func (s State) GetString(key string) string {
	v, ok := s[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Has reports whether the field is set to a non-nil value.
func (s State) Has(key string) bool {
	v, ok := s[key]
	return ok && v != nil
}

// GetString mirrors State.GetString for projections.
func (p Projection) GetString(key string) string {
	v, ok := p[key].(string)
	if !ok {
		return ""
	}
	return v
}
