package typedesc

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// OptionalFields holds the rarely-present data that a descriptor stores
// behind its optional-fields pointer, in compressed form.
type OptionalFields struct {
	RareFlags             RareFlags
	NullableValueOffset   uint8
	ValueTypeFieldPadding uint32
}

type optionalTag uint8

const (
	optRareFlags optionalTag = iota + 1
	optNullableValueOffset
	optValueTypeFieldPadding

	optLastField optionalTag = 0x80
)

// IsZero reports whether nothing would be encoded.
func (o OptionalFields) IsZero() bool { return o == OptionalFields{} }

// Encode packs the non-zero fields as (tag, uvarint) pairs. The last pair
// has the high bit of its tag set.
func (o OptionalFields) Encode() []byte {
	type field struct {
		tag optionalTag
		val uint64
	}
	var fields []field
	if o.RareFlags != 0 {
		fields = append(fields, field{optRareFlags, uint64(o.RareFlags)})
	}
	if o.NullableValueOffset != 0 {
		fields = append(fields, field{optNullableValueOffset, uint64(o.NullableValueOffset)})
	}
	if o.ValueTypeFieldPadding != 0 {
		fields = append(fields, field{optValueTypeFieldPadding, uint64(o.ValueTypeFieldPadding)})
	}
	out := make([]byte, 0, len(fields)*(1+binary.MaxVarintLen32))
	for i, f := range fields {
		tag := f.tag
		if i == len(fields)-1 {
			tag |= optLastField
		}
		out = append(out, byte(tag))
		out = binary.AppendUvarint(out, f.val)
	}
	return out
}

// DecodeOptionalFields is the inverse of Encode. It returns the fields and
// the number of bytes consumed.
func DecodeOptionalFields(b []byte) (OptionalFields, int, error) {
	var o OptionalFields
	pos := 0
	for {
		if pos >= len(b) {
			return o, pos, fmt.Errorf("optional fields: truncated at byte %d", pos)
		}
		tag := optionalTag(b[pos])
		pos++
		val, n := binary.Uvarint(b[pos:])
		if n <= 0 {
			return o, pos, fmt.Errorf("optional fields: bad varint at byte %d", pos)
		}
		pos += n
		switch tag &^ optLastField {
		case optRareFlags:
			v, err := safecast.Conv[uint32](val)
			if err != nil {
				return o, pos, fmt.Errorf("optional fields: rare flags: %w", err)
			}
			o.RareFlags = RareFlags(v)
		case optNullableValueOffset:
			v, err := safecast.Conv[uint8](val)
			if err != nil {
				return o, pos, fmt.Errorf("optional fields: nullable offset: %w", err)
			}
			o.NullableValueOffset = v
		case optValueTypeFieldPadding:
			v, err := safecast.Conv[uint32](val)
			if err != nil {
				return o, pos, fmt.Errorf("optional fields: padding: %w", err)
			}
			o.ValueTypeFieldPadding = v
		default:
			return o, pos, fmt.Errorf("optional fields: unknown tag %#x", uint8(tag))
		}
		if tag&optLastField != 0 {
			return o, pos, nil
		}
	}
}
