package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"aotrt/internal/typesys"
)

// Manifest is a loaded aotrt.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
	Digest Digest // hash of the file contents
}

// Config mirrors the manifest layout:
//
//	[package]            name, target, jobs
//	[[module]]           name
//	[[type]]             name, module, kind, base, interfaces, size, ...
//	  [[type.method]]    name, params, static, virtual
//	[[array]]            element, rank, module
//	[[pointer]]          element, module
//	[[instantiate]]      generic, args
//	[[delegate]]         type, params, [delegate.thunks]
//	[[bind]]             delegate, target
type Config struct {
	Package   PackageConfig    `toml:"package"`
	Modules   []ModuleConfig   `toml:"module"`
	Types     []TypeConfig     `toml:"type"`
	Arrays    []ArrayConfig    `toml:"array"`
	Pointers  []PointerConfig  `toml:"pointer"`
	Instances []InstanceConfig `toml:"instantiate"`
	Delegates []DelegateConfig `toml:"delegate"`
	Binds     []BindConfig     `toml:"bind"`
}

type PackageConfig struct {
	Name   string `toml:"name"`
	Target string `toml:"target"`
	Jobs   int    `toml:"jobs"`
}

type ModuleConfig struct {
	Name string `toml:"name"`
}

// TypeConfig declares a named type and the descriptor emitted for it.
type TypeConfig struct {
	Name         string          `toml:"name"`
	Module       string          `toml:"module"`
	Kind         string          `toml:"kind"` // class (default), struct, interface
	Base         string          `toml:"base"`
	Interfaces   []string        `toml:"interfaces"`
	Size         int             `toml:"size"`
	Pointers     bool            `toml:"pointers"`
	GenericArity int             `toml:"generic_arity"`
	Finalizer    string          `toml:"finalizer"` // name of a method on the type
	Rare         []string        `toml:"rare"`      // cctor, custom-cast, align8, dynamic
	Padding      int             `toml:"padding"`
	Nullable     *NullableConfig `toml:"nullable"`
	CloneInto    []string        `toml:"clone_into"`
	Methods      []MethodConfig  `toml:"method"`
}

type NullableConfig struct {
	Type   string `toml:"type"`
	Offset int    `toml:"offset"`
}

type MethodConfig struct {
	Name    string `toml:"name"`
	Params  int    `toml:"params"`
	Static  bool   `toml:"static"`
	Virtual bool   `toml:"virtual"`
}

type ArrayConfig struct {
	Element string `toml:"element"`
	Rank    int    `toml:"rank"`
	Module  string `toml:"module"` // defaults to the element's module
}

type PointerConfig struct {
	Element string `toml:"element"`
	Module  string `toml:"module"`
}

type InstanceConfig struct {
	Generic string   `toml:"generic"`
	Args    []string `toml:"args"`
}

// DelegateConfig registers a delegate family: the parameter count of its
// Invoke method and its thunks, by kind, as method names on the type.
type DelegateConfig struct {
	Type   string            `toml:"type"`
	Params int               `toml:"params"`
	Thunks map[string]string `toml:"thunks"`
}

// BindConfig requests a creation record for a delegate over a target.
// Target is "Owner.Method".
type BindConfig struct {
	Delegate string `toml:"delegate"`
	Target   string `toml:"target"`
}

// SplitMethodRef splits "Owner.Method" at the last dot.
func SplitMethodRef(ref string) (owner, method string, ok bool) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// Load finds aotrt.toml at or above startDir and loads it.
func Load(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := LoadFile(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// LoadFile decodes and validates the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("package") {
		return nil, fmt.Errorf("%s: missing [package]", path)
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(cfg.Package.Name) == "" {
		return nil, fmt.Errorf("%s: missing [package].name", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	digest, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
		Digest: digest,
	}, nil
}

// validate checks what can be checked without a type universe: names are
// present and unique, and modules are declared. Type references are
// resolved by the linker.
func (c *Config) validate() error {
	if c.Package.Jobs < 0 {
		return fmt.Errorf("[package].jobs must not be negative")
	}
	modules := map[string]bool{typesys.CoreModule: true}
	for i, m := range c.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("[[module]] #%d: missing name", i+1)
		}
		if modules[m.Name] && m.Name != typesys.CoreModule {
			return fmt.Errorf("module %q declared twice", m.Name)
		}
		modules[m.Name] = true
	}
	knownModule := func(name string) bool { return name == "" || modules[name] }

	types := make(map[string]bool, len(c.Types))
	for i, t := range c.Types {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("[[type]] #%d: missing name", i+1)
		}
		if types[t.Name] {
			return fmt.Errorf("type %q declared twice", t.Name)
		}
		types[t.Name] = true
		if t.Module == "" {
			return fmt.Errorf("type %q: missing module", t.Name)
		}
		if !modules[t.Module] {
			return fmt.Errorf("type %q: undeclared module %q", t.Name, t.Module)
		}
		if t.Size < 0 || t.Padding < 0 || t.GenericArity < 0 {
			return fmt.Errorf("type %q: size, padding and generic_arity must not be negative", t.Name)
		}
		for _, into := range t.CloneInto {
			if !modules[into] || into == t.Module {
				return fmt.Errorf("type %q: cannot clone into %q", t.Name, into)
			}
		}
		methods := make(map[string]bool, len(t.Methods))
		for _, m := range t.Methods {
			if m.Name == "" || m.Params < 0 {
				return fmt.Errorf("type %q: invalid method %+v", t.Name, m)
			}
			if methods[m.Name] {
				return fmt.Errorf("type %q: method %q declared twice", t.Name, m.Name)
			}
			methods[m.Name] = true
		}
		if t.Finalizer != "" && !methods[t.Finalizer] {
			return fmt.Errorf("type %q: finalizer %q is not a method of the type", t.Name, t.Finalizer)
		}
	}
	for _, a := range c.Arrays {
		if a.Element == "" || a.Rank < 0 || !knownModule(a.Module) {
			return fmt.Errorf("invalid [[array]] %+v", a)
		}
	}
	for _, p := range c.Pointers {
		if p.Element == "" || !knownModule(p.Module) {
			return fmt.Errorf("invalid [[pointer]] %+v", p)
		}
	}
	for _, in := range c.Instances {
		if in.Generic == "" || len(in.Args) == 0 {
			return fmt.Errorf("invalid [[instantiate]] %+v", in)
		}
	}
	for _, d := range c.Delegates {
		if d.Type == "" || d.Params < 0 {
			return fmt.Errorf("invalid [[delegate]] %+v", d)
		}
	}
	for _, b := range c.Binds {
		if b.Delegate == "" {
			return fmt.Errorf("[[bind]] without delegate")
		}
		if _, _, ok := SplitMethodRef(b.Target); !ok {
			return fmt.Errorf("[[bind]] %s: target %q is not Owner.Method", b.Delegate, b.Target)
		}
	}
	return nil
}
