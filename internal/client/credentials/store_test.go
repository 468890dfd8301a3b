package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const origin = "http://localhost:8000"

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), origin, zerolog.Nop())
}

func TestFileStore_SetGet(t *testing.T) {
	s := newFileStore(t)

	if _, ok := s.Get(); ok {
		t.Fatal("expected empty store")
	}
	if err := s.Set("tok-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	tok, ok := s.Get()
	if !ok || tok != "tok-1" {
		t.Errorf("expected tok-1, got %q (%v)", tok, ok)
	}
}

func TestFileStore_Permissions(t *testing.T) {
	s := newFileStore(t)
	if err := s.Set("tok-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != FilePermissions {
		t.Errorf("expected mode %o, got %o", FilePermissions, perm)
	}
}

func TestFileStore_DurableAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a := NewFileStore(dir, origin, zerolog.Nop())
	if err := a.Set("tok-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	b := NewFileStore(dir, origin, zerolog.Nop())
	if tok, ok := b.Get(); !ok || tok != "tok-1" {
		t.Errorf("expected second instance to read tok-1, got %q", tok)
	}

	if err := b.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, ok := a.Get(); ok {
		t.Error("expected first instance to observe clear on next read")
	}
}

func TestFileStore_OriginsIsolated(t *testing.T) {
	dir := t.TempDir()
	local := NewFileStore(dir, origin, zerolog.Nop())
	remote := NewFileStore(dir, "https://cabinet.example.com", zerolog.Nop())

	local.Set("local-token")
	if _, ok := remote.Get(); ok {
		t.Fatal("expected other origin to have no credential")
	}
	remote.Set("remote-token")
	remote.Clear()

	if tok, _ := local.Get(); tok != "local-token" {
		t.Errorf("expected local token to survive, got %q", tok)
	}
}

func TestFileStore_ClearRemovesLegacyUserKey(t *testing.T) {
	s := newFileStore(t)
	raw, _ := json.Marshal(fileData{Origins: map[string]map[string]string{
		origin: {TokenKey: "tok", UserKey: `{"id":1}`},
	}})
	if err := os.WriteFile(s.Path(), raw, FilePermissions); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	var data fileData
	b, _ := os.ReadFile(s.Path())
	json.Unmarshal(b, &data)
	if _, ok := data.Origins[origin]; ok {
		t.Errorf("expected origin entry to be removed, got %v", data.Origins[origin])
	}
}

func TestFileStore_ClearIdempotent(t *testing.T) {
	s := newFileStore(t)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("expected clear on empty store not to create the file")
	}

	s.Set("tok")
	for i := 0; i < 3; i++ {
		if err := s.Clear(); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
	}
	if _, ok := s.Get(); ok {
		t.Error("expected empty store")
	}
}

func TestFileStore_ConcurrentClears(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, origin, zerolog.Nop())
	other := NewFileStore(dir, origin, zerolog.Nop())
	s.Set("tok")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = s.Clear() }()
		go func() { defer wg.Done(); _ = other.Clear() }()
	}
	wg.Wait()

	if _, ok := s.Get(); ok {
		t.Error("expected empty store after concurrent clears")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	s := newFileStore(t)
	os.WriteFile(s.Path(), []byte("{not json"), FilePermissions)

	if _, ok := s.Get(); ok {
		t.Error("expected corrupt file to read as absent")
	}
	if err := s.Set("tok"); err != nil {
		t.Fatalf("Set over corrupt file: %v", err)
	}
	if tok, _ := s.Get(); tok != "tok" {
		t.Errorf("expected tok, got %q", tok)
	}
}

func TestFileStore_SetEmptyRejected(t *testing.T) {
	if err := newFileStore(t).Set(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "medcabinet")
	s := NewFileStore(dir, origin, zerolog.Nop())
	if err := s.Set("tok"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	var s Store = NewMemoryStore("")
	if _, ok := s.Get(); ok {
		t.Fatal("expected empty store")
	}
	s.Set("tok")
	if tok, ok := s.Get(); !ok || tok != "tok" {
		t.Errorf("expected tok, got %q", tok)
	}
	s.Clear()
	s.Clear()
	if _, ok := s.Get(); ok {
		t.Error("expected empty store after clear")
	}
}
