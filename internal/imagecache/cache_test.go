package imagecache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"aotrt/internal/project"
	"aotrt/internal/typedesc"
)

func samplePayload() *Payload {
	return &Payload{
		Schema: SchemaVersion,
		Target: "x86_64-linux-gnu",
		Images: []typedesc.ModuleImage{{
			Name:    "core",
			Base:    0x1000_0000,
			Data:    []byte{1, 2, 3, 4},
			Symbols: map[string]typedesc.Addr{"System.Object": 0x1000_0000},
		}},
		Services: []byte{0x80},
	}
}

func TestPutGet(t *testing.T) {
	c, err := OpenDir(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	key := project.HashBytes([]byte("manifest"))

	var got Payload
	if ok, err := c.Get(key, &got); ok || err != nil {
		t.Fatalf("empty cache hit: ok=%v err=%v", ok, err)
	}
	if err := c.Put(key, samplePayload()); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := c.Get(key, &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	img := got.Images[0]
	if got.Target != "x86_64-linux-gnu" || img.Name != "core" || img.Base != 0x1000_0000 {
		t.Fatalf("payload = %+v", got)
	}
	if !bytes.Equal(img.Data, []byte{1, 2, 3, 4}) || img.Symbols["System.Object"] != 0x1000_0000 {
		t.Fatalf("image = %+v", img)
	}
	entries, err := os.ReadDir(filepath.Join(c.Dir(), "images"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly the payload file, got %v (%v)", entries, err)
	}
}

func TestSchemaMismatchIsMiss(t *testing.T) {
	c, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := project.HashBytes([]byte("old"))
	p := samplePayload()
	p.Schema = SchemaVersion + 1
	if err := c.Put(key, p); err != nil {
		t.Fatal(err)
	}
	var got Payload
	if ok, err := c.Get(key, &got); ok || err != nil {
		t.Fatalf("stale schema must miss: ok=%v err=%v", ok, err)
	}
}

func TestCorruptPayload(t *testing.T) {
	c, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := project.HashBytes([]byte("corrupt"))
	path := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0xc1}, 0o600); err != nil {
		t.Fatal(err)
	}
	var got Payload
	if _, err := c.Get(key, &got); err == nil {
		t.Fatal("corrupt payload must fail to decode")
	}
}

func TestDropAll(t *testing.T) {
	c, err := OpenDir(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	key := project.HashBytes([]byte("x"))
	if err := c.Put(key, samplePayload()); err != nil {
		t.Fatal(err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	var got Payload
	if ok, _ := c.Get(key, &got); ok {
		t.Fatal("payload survived DropAll")
	}
	if err := c.Put(key, samplePayload()); err != nil {
		t.Fatalf("cache unusable after DropAll: %v", err)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	var got Payload
	if ok, err := c.Get(project.Digest{}, &got); ok || err != nil {
		t.Fatal("nil cache must miss")
	}
	if err := c.Put(project.Digest{}, samplePayload()); err != nil || c.DropAll() != nil {
		t.Fatal("nil cache must accept writes silently")
	}
}
