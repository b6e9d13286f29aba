package node

import (
	"reflect"
	"strings"
)

// ID is the stable identity of a node kind. It is used as the key in the
// registry, the graph and every per-run bookkeeping map.
//
// IDs are plain strings so they can be declared as constants next to the node
// implementation:
//
//	const ChargePaymentID node.ID = "orders.ChargePayment"
//
// TypeID derives an ID from the implementing Go type for callers that prefer
// the import-path based naming.
type ID string

// String returns the ID as a string.
func (id ID) String() string {
	return string(id)
}

// IsValid returns true if the ID is non-empty and contains no whitespace.
func (id ID) IsValid() bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(string(id), " \t\r\n")
}

// ShortString returns a shortened version of the ID for display purposes.
// Only the last component of an import-path style ID is kept.
//
// Example: "github.com/nomis52/nodegraph/demo.ChargePayment" becomes "demo.ChargePayment"
func (id ID) ShortString() string {
	s := string(id)
	if i := strings.LastIndex(s, "/"); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}

// TypeID returns the ID for a node value based on its Go type, in the form
// "<import path>.<type name>". Pointer types are dereferenced.
func TypeID(v any) ID {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	if t.PkgPath() == "" {
		return ID(t.Name())
	}
	return ID(t.PkgPath() + "." + t.Name())
}

// IDs converts a list of strings to IDs.
func IDs(names ...string) []ID {
	ids := make([]ID, len(names))
	for i, n := range names {
		ids[i] = ID(n)
	}
	return ids
}
