// Package abi exposes host objects to callers that can only hold opaque
// words. Every object is stored in handle.Default; each type has from-object
// and to-object conversions plus add-ref and release, and every function
// reports a handle.Status and writes its results through out-parameters.
//
// The typed functions check that an ID refers to the expected type, so a
// Dispatcher ID cannot be released through the PropertyBag functions.
package abi

import (
	"github.com/joeycumines/native-module-host/internal/handle"
)

// Status aliases handle.Status.
type Status = handle.Status

const (
	StatusOK    = handle.StatusOK
	StatusError = handle.StatusError
)

// ID aliases handle.ID. The zero ID means no object.
type ID = handle.ID

func fromObject[T any](obj T, out *ID) Status {
	return handle.Default.FromObject(obj, out)
}

func toObject[T any](id ID, out *T) Status {
	return handle.ToObject(handle.Default, id, out)
}

func addRef[T any](id ID) Status {
	var obj T
	if toObject(id, &obj) != StatusOK {
		return StatusError
	}
	return handle.Default.AddRef(id)
}

func release[T any](id ID) Status {
	var obj T
	if toObject(id, &obj) != StatusOK {
		return StatusError
	}
	return handle.Default.Release(id)
}

// lookup is toObject for arguments, failing on the zero ID.
func lookup[T any](id ID) (T, bool) {
	var obj T
	if id == 0 || toObject(id, &obj) != StatusOK {
		return obj, false
	}
	return obj, true
}

// Object is the universal handle type: any ID may be retained or released
// through it regardless of what it refers to.
func ObjectAddRef(id ID) Status  { return handle.Default.AddRef(id) }
func ObjectRelease(id ID) Status { return handle.Default.Release(id) }

// Live returns the number of IDs currently issued.
func Live() int { return handle.Default.Len() }
