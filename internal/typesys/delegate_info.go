package typesys

import "fmt"

// ThunkKind selects one of the adapter methods a delegate family provides.
type ThunkKind uint8

const (
	MulticastThunk ThunkKind = iota
	ClosedStaticThunk
	OpenStaticThunk
	ClosedInstanceThunkOverGenericMethod
	DelegateInvokeThunk
	OpenInstanceThunk
	ObjectArrayThunk
	thunkKindCount
)

var thunkKindNames = [...]string{
	MulticastThunk:                       "multicast",
	ClosedStaticThunk:                    "closed-static",
	OpenStaticThunk:                      "open-static",
	ClosedInstanceThunkOverGenericMethod: "closed-instance-generic",
	DelegateInvokeThunk:                  "invoke",
	OpenInstanceThunk:                    "open-instance",
	ObjectArrayThunk:                     "object-array",
}

func (k ThunkKind) String() string {
	if k < thunkKindCount {
		return thunkKindNames[k]
	}
	return fmt.Sprintf("ThunkKind(%d)", k)
}

// ParseThunkKind maps the String form back to a ThunkKind.
func ParseThunkKind(s string) (ThunkKind, bool) {
	for k, name := range thunkKindNames {
		if name == s {
			return ThunkKind(k), true
		}
	}
	return 0, false
}

// DelegateInfo is what the compiler knows about a delegate type definition:
// the signature of its Invoke method and the thunks registered for it.
type DelegateInfo struct {
	Signature Signature
	Thunks    map[ThunkKind]MethodID
}

// Thunk returns the registered thunk of the given kind.
func (d DelegateInfo) Thunk(kind ThunkKind) (MethodID, bool) {
	m, ok := d.Thunks[kind]
	return m, ok && m != NoMethodID
}
