package abi

import (
	"github.com/joeycumines/native-module-host/internal/property"
)

// GetNamespace atomizes name and returns an ID for the namespace.
func GetNamespace(name string, out *ID) Status {
	return fromObject(property.GetNamespace(name), out)
}

func NamespaceFromObject(ns *property.Namespace, out *ID) Status {
	if ns == nil {
		return StatusError
	}
	return fromObject(ns, out)
}

func NamespaceToObject(id ID, out **property.Namespace) Status {
	return toObject(id, out)
}

func NamespaceAddRef(id ID) Status  { return addRef[*property.Namespace](id) }
func NamespaceRelease(id ID) Status { return release[*property.Namespace](id) }

// NamespaceString writes the namespace's name.
func NamespaceString(id ID, out *string) Status {
	ns, ok := lookup[*property.Namespace](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = ns.String()
	return StatusOK
}

// GetName atomizes (namespace, local) and returns an ID for the name.
func GetName(namespace ID, local string, out *ID) Status {
	ns, ok := lookup[*property.Namespace](namespace)
	if !ok {
		return StatusError
	}
	return fromObject(property.GetName(ns, local), out)
}

func NameFromObject(name *property.Name, out *ID) Status {
	if name == nil {
		return StatusError
	}
	return fromObject(name, out)
}

func NameToObject(id ID, out **property.Name) Status {
	return toObject(id, out)
}

func NameAddRef(id ID) Status  { return addRef[*property.Name](id) }
func NameRelease(id ID) Status { return release[*property.Name](id) }

// NameLocalName writes the name's local part.
func NameLocalName(id ID, out *string) Status {
	name, ok := lookup[*property.Name](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = name.LocalName()
	return StatusOK
}

// NameNamespace writes a new ID for the name's namespace.
func NameNamespace(id ID, out *ID) Status {
	name, ok := lookup[*property.Name](id)
	if !ok {
		return StatusError
	}
	return fromObject(name.Namespace(), out)
}

func ValueFromObject(v property.Value, out *ID) Status {
	return fromObject(v, out)
}

func ValueToObject(id ID, out *property.Value) Status {
	return toObject(id, out)
}

func ValueAddRef(id ID) Status  { return addRef[property.Value](id) }
func ValueRelease(id ID) Status { return release[property.Value](id) }

// ValueKind writes the value's kind.
func ValueKind(id ID, out *property.Kind) Status {
	v, ok := lookup[property.Value](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = v.Kind()
	return StatusOK
}

// ValueFromUTF16LE creates a String value from little-endian UTF-16 bytes.
func ValueFromUTF16LE(b []byte, out *ID) Status {
	v, err := property.StringFromUTF16LE(b)
	if err != nil {
		return StatusError
	}
	return fromObject(v, out)
}

// ValueUTF16LE writes a String value as little-endian UTF-16 bytes.
func ValueUTF16LE(id ID, out *[]byte) Status {
	v, ok := lookup[property.Value](id)
	if !ok || out == nil {
		return StatusError
	}
	b, err := v.UTF16LE()
	if err != nil {
		return StatusError
	}
	*out = b
	return StatusOK
}

// CreatePropertyBag returns an ID for a new, empty bag.
func CreatePropertyBag(out *ID) Status {
	return fromObject(property.NewBag(), out)
}

func PropertyBagFromObject(bag *property.Bag, out *ID) Status {
	if bag == nil {
		return StatusError
	}
	return fromObject(bag, out)
}

func PropertyBagToObject(id ID, out **property.Bag) Status {
	return toObject(id, out)
}

func PropertyBagAddRef(id ID) Status  { return addRef[*property.Bag](id) }
func PropertyBagRelease(id ID) Status { return release[*property.Bag](id) }

// PropertyBagGet writes a new value ID for the property, or the zero ID when
// it is not set. Entries that are not property values are returned as Object
// values.
func PropertyBagGet(bag, name ID, out *ID) Status {
	b, ok := lookup[*property.Bag](bag)
	if !ok || out == nil {
		return StatusError
	}
	n, ok := lookup[*property.Name](name)
	if !ok {
		return StatusError
	}
	x, ok := b.Lookup(n)
	if !ok {
		*out = 0
		return StatusOK
	}
	v, isValue := x.(property.Value)
	if !isValue {
		v = property.Object(x)
	}
	return fromObject(v, out)
}

// PropertyBagSet stores the value, or removes the property when value is the
// zero ID. Object values store the object they wrap.
func PropertyBagSet(bag, name, value ID) Status {
	b, ok := lookup[*property.Bag](bag)
	if !ok {
		return StatusError
	}
	n, ok := lookup[*property.Name](name)
	if !ok {
		return StatusError
	}
	if value == 0 {
		b.Remove(n)
		return StatusOK
	}
	v, ok := lookup[property.Value](value)
	if !ok {
		return StatusError
	}
	if v.Kind() == property.KindObject && !v.IsArray() {
		b.Set(n, v.Raw())
		return StatusOK
	}
	b.Set(n, v)
	return StatusOK
}
