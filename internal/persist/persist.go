/*
 * cyber6000 - Central/Extended memory snapshot persistence.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package persist saves and restores a mainframe's Central Memory and the
// installation's shared ECS store to flat binary files under a configured
// directory (SPEC_FULL.md §6.3), so an installation can be stopped and
// restarted without losing the program state resident in memory. Layout is
// a raw little-endian word dump with no header: the word count is supplied
// by the caller (CM/ECS are sized at configuration time, not rediscovered
// from the file), so this is not meant to be bit-exact across differently
// configured hosts.
package persist

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateWords64 reads count 60-bit words (stored as 64-bit
// little-endian values) from path. A missing file is not an error: it
// returns a zeroed slice of count words, matching a cold-start CM/ECS. A
// file present but of the wrong length is truncated or zero-padded to
// count rather than rejected, so a configuration's word count can grow
// across restarts without losing the existing snapshot's prefix.
func LoadOrCreateWords64(path string, count uint32) ([]uint64, error) {
	words := make([]uint64, count)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return words, nil
		}
		return nil, fmt.Errorf("persist: %w", err)
	}
	n := len(data) / 8
	if n > int(count) {
		n = int(count)
	}
	for i := 0; i < n; i++ {
		words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return words, nil
}

// SaveWords64 writes words to path as a raw little-endian dump, creating
// the containing directory if needed.
func SaveWords64(path string, words []uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	data := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(data[i*8:], w)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// CMPath returns the backing file path for mainframe id's Central Memory
// under dir.
func CMPath(dir string, mainframeID int) string {
	return filepath.Join(dir, fmt.Sprintf("mainframe%d.cm", mainframeID))
}

// ECSPath returns the backing file path for the installation-wide ECS
// store under dir.
func ECSPath(dir string) string {
	return filepath.Join(dir, "ecs.mem")
}
