// Package reflectstub answers reflection queries for types whose metadata
// was not compiled into the image. Only identity questions can be answered
// from the descriptor; everything structural reports missing metadata.
package reflectstub

import (
	"errors"
	"fmt"

	"aotrt/internal/typedesc"
)

// ErrMissingMetadata is matched by every *MissingMetadataError.
var ErrMissingMetadata = errors.New("missing metadata")

// MissingMetadataError names the type and the query that needed metadata.
type MissingMetadataError struct {
	Type  string
	Query string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("%s: %s requires reflection metadata for %s", ErrMissingMetadata, e.Query, e.Type)
}

func (e *MissingMetadataError) Is(target error) bool { return target == ErrMissingMetadata }

// NoMetadataType is the reflection view of a descriptor without metadata.
type NoMetadataType struct {
	desc typedesc.Descriptor
}

// New wraps d.
func New(d typedesc.Descriptor) NoMetadataType { return NoMetadataType{desc: d} }

// Descriptor returns the wrapped descriptor.
func (t NoMetadataType) Descriptor() typedesc.Descriptor { return t.desc }

func (t NoMetadataType) missing(query string) error {
	return &MissingMetadataError{Type: t.desc.Name(), Query: query}
}

// Equal reports whether both views denote the same type.
func (t NoMetadataType) Equal(o NoMetadataType) bool {
	return typedesc.Equivalent(t.desc, o.desc)
}

// Hash is the type identity hash from the descriptor header.
func (t NoMetadataType) Hash() uint32 {
	return t.desc.HashCode()
}

// IsGenericTypeDefinition is answered from the descriptor kind.
func (t NoMetadataType) IsGenericTypeDefinition() bool {
	return t.desc.IsGenericTypeDefinition()
}

// IsGenericType covers both instantiations and definitions.
func (t NoMetadataType) IsGenericType() bool {
	return t.desc.IsGeneric() || t.IsGenericTypeDefinition()
}

func (t NoMetadataType) Name() (string, error)      { return "", t.missing("Name") }
func (t NoMetadataType) Namespace() (string, error) { return "", t.missing("Namespace") }
func (t NoMetadataType) Assembly() (string, error)  { return "", t.missing("Assembly") }
func (t NoMetadataType) GUID() ([16]byte, error)    { return [16]byte{}, t.missing("GUID") }

func (t NoMetadataType) Attributes() (uint32, error) { return 0, t.missing("Attributes") }

func (t NoMetadataType) CustomAttributes() ([]string, error) {
	return nil, t.missing("CustomAttributes")
}

func (t NoMetadataType) DeclaredNestedTypes() ([]NoMetadataType, error) {
	return nil, t.missing("DeclaredNestedTypes")
}

func (t NoMetadataType) DeclaredMembers() ([]string, error) {
	return nil, t.missing("DeclaredMembers")
}

func (t NoMetadataType) GenericTypeParameters() ([]NoMetadataType, error) {
	return nil, t.missing("GenericTypeParameters")
}

func (t NoMetadataType) BaseType() (NoMetadataType, error) {
	return NoMetadataType{}, t.missing("BaseType")
}

func (t NoMetadataType) ImplementedInterfaces() ([]NoMetadataType, error) {
	return nil, t.missing("ImplementedInterfaces")
}
