package layout

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed targets.yaml
var rawTargets []byte

var targets []Target

// Target describes the ABI target triple and its pointer properties.
type Target struct {
	Triple    string `yaml:"triple"`    // e.g. "x86_64-linux-gnu"
	PtrSize   int    `yaml:"ptrSize"`   // bytes
	PtrAlign  int    `yaml:"ptrAlign"`  // bytes
	BigEndian bool   `yaml:"bigEndian"` // byte order of emitted data
	// Align8 marks targets where 64-bit fields need explicit 8-byte
	// alignment (the RequiresAlign8 rare flag is only meaningful here).
	Align8 bool `yaml:"align8"`
}

func init() {
	var t struct {
		Elements []Target `yaml:"targets"`
	}
	if err := yaml.Unmarshal(rawTargets, &t); err != nil {
		panic(err)
	}
	targets = t.Elements
}

// All returns every known target.
func All() []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// Lookup finds a target by triple.
func Lookup(triple string) (Target, bool) {
	for _, t := range targets {
		if t.Triple == triple {
			return t, true
		}
	}
	return Target{}, false
}

// MustLookup is Lookup that panics on unknown triples.
func MustLookup(triple string) Target {
	t, ok := Lookup(triple)
	if !ok {
		panic(fmt.Sprintf("layout: unknown target %q", triple))
	}
	return t
}

func X86_64LinuxGNU() Target {
	return MustLookup("x86_64-linux-gnu")
}

// ByteOrder returns the byte order used for descriptor images.
func (t Target) ByteOrder() binary.ByteOrder {
	if t.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (t Target) ptrSize() int {
	if t.PtrSize <= 0 {
		return 8
	}
	return t.PtrSize
}
