package typedesc

import "golang.org/x/text/unicode/norm"

// NameHash is the type identity hash stored in every descriptor header:
// FNV-1a over the NFC form of the fully qualified type name, so the same
// name spelled with different Unicode compositions hashes identically.
func NameHash(name string) uint32 {
	const (
		fnvOffset32 = 2166136261
		fnvPrime32  = 16777619
	)
	hash := uint32(fnvOffset32)
	for _, b := range norm.NFC.Bytes([]byte(name)) {
		hash ^= uint32(b)
		hash *= fnvPrime32
	}
	return hash
}

// ParameterizedHash derives the hash of an array or pointer type from its
// element hash and shape.
func ParameterizedHash(elem, shape uint32) uint32 {
	h := elem
	h = (h << 5) | (h >> 27)
	h ^= 0x9e3779b9 + shape
	return h
}
