/*
 * cyber6000 - Central Memory and Extended/ECS memory.
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

// Package memory implements the CPU-visible Central Memory of a single
// mainframe, and the installation-wide Extended/ECS memory the mainframes
// share, including its 3-bit flag-register sub-function protocol.
//
// CM is owned per-Mainframe and ECS is owned once per-Installation,
// matching §3: each mainframe exclusively owns its CM, while the
// installation exclusively owns ECS.
package memory

import (
	"sync"

	"github.com/dtcyber-go/cyber6000/internal/word"
)

// CentralMemory is one mainframe's 60-bit-word main store.
type CentralMemory struct {
	words []uint64
}

// NewCentralMemory allocates a CM of the given word count.
func NewCentralMemory(size uint32) *CentralMemory {
	return &CentralMemory{words: make([]uint64, size)}
}

// Size returns the installed word count.
func (m *CentralMemory) Size() uint32 {
	return uint32(len(m.words))
}

// Read returns the word at absolute address addr. Addresses beyond the
// installed size wrap modulo the installed size; callers implementing
// HasNoCmWrap must check bounds themselves before calling Read.
func (m *CentralMemory) Read(addr uint32) uint64 {
	return m.words[addr%uint32(len(m.words))] & word.Mask60
}

// Write stores val (masked to 60 bits) at absolute address addr, wrapping
// as Read does.
func (m *CentralMemory) Write(addr uint32, val uint64) {
	m.words[addr%uint32(len(m.words))] = val & word.Mask60
}

// Raw exposes the backing slice for persistence (§6.3): snapshot load/save
// to a per-mainframe backing file.
func (m *CentralMemory) Raw() []uint64 {
	return m.words
}

// ECS flag-register sub-functions, encoded in bits 21..23 of the ECS
// address when bit 23 of both the address and FL-ECS is set (§4.4).
const (
	EcsFlagReadySelect  = 4
	EcsFlagSelectiveSet = 5
	EcsFlagStatus       = 6
	EcsFlagSelectiveClr = 7
)

// ExtendedMemory is the installation-wide ECS/UEM store plus its flag
// register, shared by every mainframe in the installation.
type ExtendedMemory struct {
	words []uint64

	mu          sync.Mutex
	flagReg     uint32 // 18-bit ECS flag register, process-wide.
}

// NewExtendedMemory allocates ECS of the given word count. A zero size is
// legal: §4.4 requires EcsWord to fail cleanly when extMaxMemory == 0.
func NewExtendedMemory(size uint32) *ExtendedMemory {
	return &ExtendedMemory{words: make([]uint64, size)}
}

// Size returns the installed ECS word count.
func (e *ExtendedMemory) Size() uint32 {
	return uint32(len(e.words))
}

// Read returns the ECS word at absolute address addr. The caller is
// responsible for range-checking against FL-ECS first.
func (e *ExtendedMemory) Read(addr uint32) uint64 {
	if len(e.words) == 0 {
		return 0
	}
	return e.words[addr%uint32(len(e.words))] & word.Mask60
}

// Write stores val at absolute ECS address addr.
func (e *ExtendedMemory) Write(addr uint32, val uint64) {
	if len(e.words) == 0 {
		return
	}
	e.words[addr%uint32(len(e.words))] = val & word.Mask60
}

// Raw exposes the backing slice for persistence.
func (e *ExtendedMemory) Raw() []uint64 {
	return e.words
}

// FlagRegisterOp applies one of the four ECS flag-register sub-functions
// against flagWord (§4.4). It reports whether the operation succeeded;
// EcsFlagStatus and EcsFlagReadySelect can fail without mutating anything.
// Sub-function 6 (Status) is documented as not needing the lock for its
// read-only test, but taking it anyway costs nothing observable and keeps
// this function's contract uniform for every sub-function.
func (e *ExtendedMemory) FlagRegisterOp(subFn int, flagWord uint32) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch subFn {
	case EcsFlagReadySelect:
		if e.flagReg&flagWord != 0 {
			return false
		}
		e.flagReg |= flagWord
		return true
	case EcsFlagSelectiveSet:
		e.flagReg |= flagWord
		return true
	case EcsFlagStatus:
		return e.flagReg&flagWord == 0
	case EcsFlagSelectiveClr:
		e.flagReg &^= flagWord
		return true
	default:
		return false
	}
}

// FlagRegister returns the current 18-bit flag-register value, for
// diagnostics and the operator console.
func (e *ExtendedMemory) FlagRegister() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flagReg & 0x3ffff
}
