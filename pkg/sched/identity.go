package sched

import (
	"reflect"
	"unsafe"
)

// funcID returns the identity of a function value: the pointer to its
// closure record, 0 for nil. Distinct closures built by one factory get
// distinct identities; a top-level function or a stored method value keeps
// the same identity every time it is passed.
func funcID(fn func()) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

// funcWithDataID is funcID for one-argument functions.
func funcWithDataID(fn func(any)) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

// closureOf returns the closure pointer of a func held in an interface.
// A func is pointer-shaped, so it sits directly in the interface data word.
func closureOf(v any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&v))[1]
}

// isNil reports whether v is nil or a typed nil of a nillable kind.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// sameValue compares two values by identity without panicking on
// non-comparable dynamic types. Reference kinds compare by address;
// other non-comparable values never match.
func sameValue(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		// Comparable structs and arrays may still hold non-comparable
		// values behind interface fields.
		defer func() {
			if recover() != nil {
				same = false
			}
		}()
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		return closureOf(a) == closureOf(b)
	}
	return false
}
