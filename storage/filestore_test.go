package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_CreatesRootLazily(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "transitions")
	s := NewFileStore(root)

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("Expected root to not exist before first write, got err=%v", err)
	}

	path, err := s.Write(context.Background(), "trans_1", []byte("RIFF"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(root, "trans_1.wav") {
		t.Errorf("Unexpected path %q", path)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("Expected root to exist after write: %v", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	data := []byte("RIFF\x00\x00\x00\x00WAVEdata")

	if s.Exists(ctx, "trans_1") {
		t.Error("Expected artifact to not exist before write")
	}

	if _, err := s.Write(ctx, "trans_1", data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !s.Exists(ctx, "trans_1") {
		t.Error("Expected artifact to exist after write")
	}

	got, err := s.Read(ctx, "trans_1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read returned different bytes")
	}
}

func TestFileStore_ReadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir())

	_, err := s.Read(context.Background(), "trans_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_Delete(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	s.Write(ctx, "trans_1", []byte("data"))
	s.Delete(ctx, "trans_1")

	if s.Exists(ctx, "trans_1") {
		t.Error("Expected artifact to be deleted")
	}

	// Deleting again must not panic or error
	s.Delete(ctx, "trans_1")
}

func TestFileStore_ExternalRemovalDetected(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	ctx := context.Background()

	path, _ := s.Write(ctx, "trans_1", []byte("data"))
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file out-of-band: %v", err)
	}

	if s.Exists(ctx, "trans_1") {
		t.Error("Expected Exists to report false after out-of-band removal")
	}
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	tests := []string{"../escape", "a/b", `a\b`, ""}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			if _, err := s.Write(ctx, id, []byte("x")); err == nil {
				t.Errorf("Expected Write(%q) to fail", id)
			}
			if s.Exists(ctx, id) {
				t.Errorf("Expected Exists(%q) to be false", id)
			}
			if _, err := s.Read(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for %q, got %v", id, err)
			}
		})
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)

	s.Write(context.Background(), "trans_1", []byte("data"))

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "trans_1.wav" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("Expected only trans_1.wav, got %v", names)
	}
}

func TestFileStore_RecreatesRemovedRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "transitions")
	s := NewFileStore(root)
	ctx := context.Background()

	if _, err := s.Write(ctx, "trans_a", []byte("RIFF")); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("failed to remove root: %v", err)
	}

	if _, err := s.Write(ctx, "trans_b", []byte("RIFF")); err != nil {
		t.Fatalf("Expected Write to recreate the root, got %v", err)
	}
	if !s.Exists(ctx, "trans_b") {
		t.Error("Expected trans_b to exist after the root was recreated")
	}
	if s.Exists(ctx, "trans_a") {
		t.Error("Expected trans_a to be gone with the old root")
	}
}
