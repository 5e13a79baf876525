package persist

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateWords64MissingFileReturnsZeroed(t *testing.T) {
	dir := t.TempDir()
	words, err := LoadOrCreateWords64(filepath.Join(dir, "missing.mem"), 4)
	if err != nil {
		t.Fatalf("LoadOrCreateWords64: %v", err)
	}
	if len(words) != 4 {
		t.Fatalf("len(words) = %d, want 4", len(words))
	}
	for i, w := range words {
		if w != 0 {
			t.Fatalf("words[%d] = %#x, want 0 for a cold-start snapshot", i, w)
		}
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "mainframe0.cm")
	want := []uint64{0o123456701234567, 0, 0xfffffffffffffff, 42}

	if err := SaveWords64(path, want); err != nil {
		t.Fatalf("SaveWords64: %v", err)
	}
	got, err := LoadOrCreateWords64(path, uint32(len(want)))
	if err != nil {
		t.Fatalf("LoadOrCreateWords64: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("words[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestLoadOrCreateWords64TruncatesLongerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecs.mem")
	if err := SaveWords64(path, []uint64{1, 2, 3, 4}); err != nil {
		t.Fatalf("SaveWords64: %v", err)
	}
	got, err := LoadOrCreateWords64(path, 2)
	if err != nil {
		t.Fatalf("LoadOrCreateWords64: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got = %v, want [1 2]", got)
	}
}

func TestLoadOrCreateWords64ZeroPadsShorterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecs.mem")
	if err := SaveWords64(path, []uint64{7, 8}); err != nil {
		t.Fatalf("SaveWords64: %v", err)
	}
	got, err := LoadOrCreateWords64(path, 4)
	if err != nil {
		t.Fatalf("LoadOrCreateWords64: %v", err)
	}
	want := []uint64{7, 8, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("words[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCMPathAndECSPathAreDistinctPerMainframe(t *testing.T) {
	if CMPath("/state", 0) == CMPath("/state", 1) {
		t.Fatal("CMPath must vary by mainframe id")
	}
	if CMPath("/state", 0) == ECSPath("/state") {
		t.Fatal("CMPath and ECSPath must not collide")
	}
}
