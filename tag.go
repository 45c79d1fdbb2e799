// SPDX-License-Identifier: Apache-2.0

package fault

// A Constructor builds tagged error values that share one tag.
type Constructor func(payload any) Err

// Tagger returns a [Constructor] for error values tagged with tag.
//
// Tags let callers tell failure variants apart without defining error types.
// Tags are compared with ==, so two constructors only collide if their tags
// are equal; unexported types or pointers make tags that cannot collide with
// anyone else's.
//
// Example:
//
//	var (
//	    ErrNotFound = fault.Tagger("not found")
//	    ErrConflict = fault.Tagger("conflict")
//	)
//
//	_, err := store.Get(ctx, key)
//	switch {
//	case fault.HasTag("not found", err):
//	    // create it
//	case fault.HasTag("conflict", err):
//	    // retry
//	}
func Tagger[T comparable](tag T) Constructor {
	return func(payload any) Err {
		return Err{marker: errMarker, payload: payload, tag: tag, tagged: true}
	}
}

// IsTagged reports whether v is an error value that carries a tag.
func IsTagged(v any) bool {
	e, ok := v.(Err)
	return ok && e.marker == errMarker && e.tagged
}

// HasTag reports whether v is an error value tagged with tag.
func HasTag[T comparable](tag T, v any) bool {
	e, ok := v.(Err)
	if !ok || e.marker != errMarker || !e.tagged {
		return false
	}
	t, ok := e.tag.(T)
	return ok && t == tag
}

// TagOf returns the tag of v, reporting false if v is not a tagged error value.
func TagOf(v any) (any, bool) {
	if !IsTagged(v) {
		return nil, false
	}
	return v.(Err).tag, true
}
