// Package hexpatch implements the hex-edit sibling pipeline: it locates a
// fixed byte marker in a file and neutralizes the two bytes that follow it,
// writing the result to a sibling output path.
package hexpatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Marker is the fixed 4-byte sequence the patcher searches for.
var Marker = []byte{0x44, 0x89, 0x88, 0x40}

// ErrBoundsExceeded is returned when the marker is found too close to the
// end of the file to have two trailing bytes to overwrite.
var ErrBoundsExceeded = errors.New("hexpatch: marker too close to end of file")

// StageNotFound is the FileStatus stage string used when the marker is
// absent; the output is still written as a verbatim copy.
const StageNotFound = "Pattern not found"

// Result reports where the patch (if any) was applied.
type Result struct {
	Found  bool
	Offset int
	Stage  string
}

// Patch reads inPath, overwrites the two bytes following the first
// occurrence of Marker with 0x00 0x00, and writes the result to outPath.
// If Marker is absent, outPath receives a byte-for-byte copy and Patch
// succeeds with Result.Found == false.
func Patch(inPath, outPath string) (Result, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return Result{}, fmt.Errorf("hexpatch: read %s: %w", inPath, err)
	}

	pos := bytes.Index(data, Marker)
	if pos < 0 {
		if err := writeAtomic(outPath, data); err != nil {
			return Result{}, err
		}
		return Result{Found: false, Stage: StageNotFound}, nil
	}

	if pos+6 > len(data) {
		return Result{}, fmt.Errorf("%w: offset %d in %s", ErrBoundsExceeded, pos, inPath)
	}

	patched := make([]byte, len(data))
	copy(patched, data)
	patched[pos+4] = 0x00
	patched[pos+5] = 0x00

	if err := writeAtomic(outPath, patched); err != nil {
		return Result{}, err
	}
	return Result{Found: true, Offset: pos, Stage: "Patched"}, nil
}

// OutputPath derives the hex-edit sibling name for an input path, per
// spec.md §6: "<stem>_hexedited<ext>" in the given output directory.
func OutputPath(outputDir, inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := stemOf(inputPath, ext)
	return filepath.Join(outputDir, stem+"_hexedited"+ext)
}

func stemOf(path, ext string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(ext)]
}

// writeAtomic writes data to a temp file alongside path and renames it
// into place, so a reader never observes a partially-written output.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hexpatch-*")
	if err != nil {
		return fmt.Errorf("hexpatch: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("hexpatch: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("hexpatch: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("hexpatch: rename into place: %w", err)
	}
	return nil
}
