package hexpatch_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vidstick/vidstick/internal/hexpatch"
)

func TestPatchMarkerAtLiteralOffset(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.webm")
	out := filepath.Join(dir, "clip_hexedited.webm")

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	copy(data[42:], hexpatch.Marker)
	data[46], data[47] = 0xAB, 0xCD
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := hexpatch.Patch(in, out)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if !result.Found || result.Offset != 42 {
		t.Fatalf("expected marker found at 42, got %+v", result)
	}

	patched, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(patched[:46], data[:46]) {
		t.Errorf("bytes before pos+4 must be unchanged")
	}
	if patched[46] != 0x00 || patched[47] != 0x00 {
		t.Errorf("expected bytes [46,47] zeroed, got %x %x", patched[46], patched[47])
	}
	if !bytes.Equal(patched[48:], data[48:]) {
		t.Errorf("bytes after pos+5 must be unchanged")
	}
}

func TestPatchMarkerAbsentCopiesVerbatim(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.webm")
	out := filepath.Join(dir, "clip_hexedited.webm")

	data := []byte("no marker anywhere in this buffer at all")
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := hexpatch.Patch(in, out)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if result.Found {
		t.Fatalf("expected marker not found")
	}
	if result.Stage != hexpatch.StageNotFound {
		t.Errorf("expected stage %q, got %q", hexpatch.StageNotFound, result.Stage)
	}

	copied, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(copied, data) {
		t.Errorf("expected byte-for-byte copy when marker absent")
	}
}

func TestPatchMarkerTooCloseToEndFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.webm")
	out := filepath.Join(dir, "clip_hexedited.webm")

	data := append([]byte{0xAA, 0xBB}, hexpatch.Marker...) // marker ends at len(data), no trailing bytes
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := hexpatch.Patch(in, out)
	if !errors.Is(err, hexpatch.ErrBoundsExceeded) {
		t.Fatalf("expected ErrBoundsExceeded, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	got := hexpatch.OutputPath("/tmp/out", "/home/user/clip.webm")
	want := filepath.Join("/tmp/out", "clip_hexedited.webm")
	if got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}
