package layout

import "fmt"

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrTooManySlots: the vtable slot count does not fit in u16.
	LayoutErrTooManySlots LayoutErrorKind = iota + 1
	LayoutErrTooManyInterfaces
	LayoutErrSizeOverflow
)

// LayoutError represents an error during descriptor layout calculation.
type LayoutError struct {
	Kind  LayoutErrorKind
	Count int
	Err   error
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrTooManySlots:
		return fmt.Sprintf("too many vtable slots: %d (max 65535)", e.Count)
	case LayoutErrTooManyInterfaces:
		return fmt.Sprintf("too many interfaces: %d (max 65535)", e.Count)
	case LayoutErrSizeOverflow:
		return fmt.Sprintf("descriptor size %d does not fit in u32", e.Count)
	default:
		return fmt.Sprintf("layout error kind=%d count=%d", e.Kind, e.Count)
	}
}

func (e *LayoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
