/*
 * cyber6000 - Central Processor engine.
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

// Package cpu implements the 60-bit Central Processor: the variable-length
// instruction decoder (§4.2), the opcode table (§4.3), the exchange-jump
// and monitor-mode protocol (§4.6), and the instruction-word stack.
// Grounded on original_source/CppCyber/MCpu.cpp and MCpu.h, reshaped into
// a per-unit struct-plus-methods idiom (one struct per engine, Step as the
// single clock-tick entry point).
package cpu

import (
	"log/slog"
	"sync"

	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
	"github.com/dtcyber-go/cyber6000/internal/word"
)

// Exit condition bits, latched in exitCondition and tested against
// exitMode<<12 for trapping (§7).
const (
	EcAddressOutOfRange uint8 = 1 << iota
	EcOperandOutOfRange
	EcIndefiniteOperand
	EcIllegalInstruction
)

// exitMode bits this engine recognizes beyond the four trap-enable bits
// (which occupy bits 12-15, shifted exitCondition).
const (
	modeStackPurge        uint32 = 1 << 16
	modeEnhancedBlockCopy uint32 = 1 << 17
	modeExpandedAddress   uint32 = 1 << 18
)

const iwStackSize = 4

// Is865 is set by the mainframe alongside the regular feature bitset when
// the configured model is 865, mirroring internal/pp's Is865 bridging
// pattern: RX/WX (01.4/01.5) are gated on the model enum directly per
// original_source/CppCyber, not on a feature bit, so mainframe.New ORs this
// bit in without giving this package a dependency on model.Type.
const Is865 model.Feature = 1 << 29

// MonitorToken arbitrates monitor-mode ownership across the (at most two)
// CPUs of a mainframe (§4.6, §5). Shared by every CPU in a mainframe.
type MonitorToken struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current int8 // -1 = none, else CPU id.
}

// NewMonitorToken allocates the shared monitor-mode arbiter for a
// mainframe's CPU set; every CPU of that mainframe must share one.
func NewMonitorToken() *MonitorToken {
	t := &MonitorToken{current: -1}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Current returns the id of the CPU currently in monitor mode, or -1.
func (t *MonitorToken) Current() int8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// CPU is one 60-bit Central Processor sharing a mainframe's CM and
// monitor token with at most one sibling CPU.
type CPU struct {
	id       int
	features model.Feature
	cm       *memory.CentralMemory
	token    *MonitorToken

	X [8]uint64 // 60-bit.
	A [8]uint32 // 18-bit.
	B [8]uint32 // 18-bit.
	P uint32    // 18-bit.

	RaCm, FlCm   uint32 // 24-bit.
	RaEcs, FlEcs uint32 // 24 or 30-bit.
	MA           uint32 // 24-bit.
	ExitMode     uint32 // 24-bit.
	ExitCond     uint8

	// FloatException latches across a floating op whose operand triggered
	// FloatCheck (§4.3.2); floatExceptionHandler consumes it once the
	// instruction finishes.
	FloatException bool

	// ClockIncrement is added to Clock once per scheduler tick
	// (AdvanceClock), and Clock is what opcode 01.6 RC reads back, per
	// §1a/§6.4's clockincrement/cpumhz configuration keys.
	ClockIncrement uint64
	Clock          uint64

	Stopped bool

	opOffset int // 60..0 cursor into the current instruction word.
	opWord   uint64
	jumped   bool // set by jumpTo; tells Step to abandon the rest of opWord.
	yielded  bool // set when an XJ attempt rewinds to retry next Step call.

	iwStack [iwStackSize]uint64
	iwAddr  [iwStackSize]uint32
	iwValid [iwStackSize]bool
	iwRank  int

	ecs *memory.ExtendedMemory
}

// New returns a stopped CPU with all registers zero.
func New(id int, features model.Feature, cm *memory.CentralMemory, ecs *memory.ExtendedMemory, token *MonitorToken) *CPU {
	return &CPU{id: id, features: features, cm: cm, ecs: ecs, token: token, Stopped: true}
}

// ID returns the CPU's id (0 or 1), used by the monitor-token protocol and
// by PP opcodes selecting a target CPU.
func (c *CPU) ID() int { return c.id }

// PReg returns the current P register, for PP opcode 27 RPN.
func (c *CPU) PReg() uint32 { return c.P }

// MAReg returns the monitor address, for PP opcode 26 MAN.
func (c *CPU) MAReg() uint32 { return c.MA }

// Registers returns a snapshot of the X, A and B register files, for the
// operator console's "show cpu" verb.
func (c *CPU) Registers() (X [8]uint64, A, B [8]uint32) {
	return c.X, c.A, c.B
}

// AdvanceClock adds ClockIncrement to Clock, once per scheduler tick
// (§1a/§6.4, opcode 01.6 RC).
func (c *CPU) AdvanceClock() {
	c.Clock += c.ClockIncrement
}

// voidIwStack invalidates i-stack entries selected by mask; ~0 invalidates
// all of them (§8 invariant 8).
func (c *CPU) voidIwStack(mask uint32) {
	for i := range c.iwValid {
		if mask&(1<<uint(i)) != 0 || mask == ^uint32(0) {
			c.iwValid[i] = false
		}
	}
}

// voidIwStackConditional implements the "void i-stack unconditionally if
// StackPurge, else conditionally (retain if the target is already cached)"
// rule a taken branch applies (§4.3 "03.i", and by extension 04-07).
func (c *CPU) voidIwStackConditional(target uint32) {
	if !c.features.Has(model.HasInstructionStack) {
		return
	}
	if c.ExitMode&modeStackPurge != 0 {
		c.voidIwStack(^uint32(0))
		return
	}
	for i, valid := range c.iwValid {
		if valid && c.iwAddr[i] == target {
			return
		}
	}
	c.voidIwStack(^uint32(0))
}

// fetchWord fetches the instruction word at absolute CM address addr,
// consulting the i-stack first when HasInstructionStack is set (§4.2).
func (c *CPU) fetchWord(addr uint32) uint64 {
	if !c.features.Has(model.HasInstructionStack) {
		return c.cm.Read(addr)
	}
	for i, valid := range c.iwValid {
		if valid && c.iwAddr[i] == addr {
			if i == c.iwRank && c.features.Has(model.HasIStackPrefetch) {
				c.prefetch(addr + 1)
			}
			return c.iwStack[i]
		}
	}
	val := c.cm.Read(addr)
	c.iwRank = (c.iwRank + 1) % iwStackSize
	c.iwStack[c.iwRank] = val
	c.iwAddr[c.iwRank] = addr
	c.iwValid[c.iwRank] = true
	if c.features.Has(model.HasIStackPrefetch) {
		c.prefetch(addr + 1)
	}
	return val
}

func (c *CPU) prefetch(addr uint32) {
	next := (c.iwRank + 1) % iwStackSize
	c.iwStack[next] = c.cm.Read(addr)
	c.iwAddr[next] = addr
	c.iwValid[next] = true
}

// raMask returns the width of RA-CM additions: 21 bits on Series-800, 18
// otherwise (§4.4).
func (c *CPU) raMask() uint {
	if c.features.Has(model.IsSeries800) {
		return 21
	}
	return 18
}

// AddRa adds an 18 (or 21)-bit operand to RA-CM with end-around carry.
func (c *CPU) AddRa(op uint32) uint32 {
	if c.raMask() == 21 {
		return word.Add21(c.RaCm, op)
	}
	return word.Add18(c.RaCm, op)
}

// ReadMem implements §4.4's ReadMem: range-checks against FL-CM, traps per
// exitMode, and otherwise wraps or fails per HasNoCmWrap.
func (c *CPU) ReadMem(addr uint32) (uint64, bool) {
	if addr >= c.FlCm {
		c.rangeFail()
		return 0, false
	}
	abs := c.AddRa(addr)
	if abs >= c.cm.Size() {
		if c.features.Has(model.HasNoCmWrap) {
			return word.Mask60, false
		}
		abs %= c.cm.Size()
	}
	return c.cm.Read(abs), true
}

// WriteMem implements §4.4's WriteMem.
func (c *CPU) WriteMem(addr uint32, val uint64) bool {
	if addr >= c.FlCm {
		c.rangeFail()
		return false
	}
	abs := c.AddRa(addr)
	if abs >= c.cm.Size() {
		if c.features.Has(model.HasNoCmWrap) {
			return false
		}
		abs %= c.cm.Size()
	}
	c.cm.Write(abs, val)
	return true
}

// rangeFail implements the address-out-of-range trap branch common to
// ReadMem/WriteMem/block-copy bounds checks (§7).
func (c *CPU) rangeFail() {
	c.ExitCond |= EcAddressOutOfRange
	if c.trapEnabled(EcAddressOutOfRange) {
		c.errorExit()
	}
}

// trapEnabled reports whether exitMode enables trapping for the given
// exit-condition bit (§7: "the mode bit matching exitCondition<<12").
func (c *CPU) trapEnabled(bit uint8) bool {
	return c.ExitMode&(uint32(bit)<<12) != 0
}

// errorExit is the standard error-exit sequence (§4.6 "Error-exit
// helper"): stop, write the exit word, zero P, and — if the model supports
// CEJ/MEJ and no CPU is in monitor — exchange-jump to MA.
func (c *CPU) errorExit() {
	c.Stopped = true
	if c.RaCm < c.cm.Size() {
		exitWord := (uint64(c.ExitCond) << 18) | uint64(c.P+1)
		c.cm.Write(c.RaCm, exitWord)
	}
	c.P = 0
	if !c.features.Has(model.HasNoCejMej) && !c.features.Has(model.IsSeries6x00) && c.token.Current() == -1 {
		c.doExchangeJump(c.MA, c.id, sourceCPU)
	}
}

const sourceCPU = 0

// OpIllegal stops the CPU with EcIllegalInstruction, per §7.
func (c *CPU) OpIllegal() {
	c.ExitCond |= EcIllegalInstruction
	c.errorExit()
}

// ExchangeJump implements §4.6's ExchangeJump(addr, monitorReq, source) for
// PP-initiated requests (EXN/MXN/MAN): it only succeeds when this CPU is
// between instruction words (or already stopped).
func (c *CPU) ExchangeJump(addr uint32, monitorReq int, source int) bool {
	if c.opOffset != 60 && c.opOffset != 0 && !c.Stopped {
		return false
	}
	return c.doExchangeJump(addr, monitorReq, source)
}

// doExchangeJump is the shared exchange-jump body (§4.6): monitor-token
// arbitration, the atomic 16-word register swap, and i-stack invalidation.
// selfInitiated callers (the CPU's own XJ instruction) bypass the
// between-words gate since they ARE the currently executing instruction.
func (c *CPU) doExchangeJump(addr uint32, monitorReq int, source int) bool {
	addr &= word.Mask18

	c.token.mu.Lock()
	switch monitorReq {
	case -1:
		if c.token.current == int8(c.id) {
			c.token.current = -1
			c.token.cond.Broadcast()
		}
	case 2:
		// No change.
	default:
		if c.token.current != -1 {
			c.token.mu.Unlock()
			return false
		}
		c.token.current = int8(monitorReq)
	}
	c.token.mu.Unlock()

	if addr == 0 {
		slog.Warn("exchange jump to address 0", "cpu", c.id, "source", source)
	}

	if addr+16 > c.cm.Size() {
		c.token.cond.Broadcast()
		return true
	}

	saved := c.captureExchangePackage()
	c.loadExchangePackage(addr)
	c.ExitCond = 0
	c.writeExchangePackage(addr, saved)

	if c.features.Has(model.HasInstructionStack) {
		c.voidIwStack(^uint32(0))
	}

	c.Stopped = false
	c.opWord = c.fetchWord(c.absoluteP())
	c.opOffset = 60
	c.token.mu.Lock()
	c.token.cond.Broadcast()
	c.token.mu.Unlock()

	c.detectIdleLoop()
	return true
}

// absoluteP resolves the CM address the current P points at, applying
// RA-CM the same way ReadMem does for instruction fetch.
func (c *CPU) absoluteP() uint32 {
	abs := c.AddRa(c.P)
	if abs >= c.cm.Size() {
		abs %= c.cm.Size()
	}
	return abs
}

// exchangePackage is the 16-word register file captured/restored by an
// exchange jump (§4.6).
type exchangePackage struct {
	P            uint32
	RaCm, FlCm   uint32
	RaEcs, FlEcs uint32
	MA           uint32
	ExitMode     uint32
	A            [8]uint32
	B            [8]uint32
	X            [8]uint64
}

func (c *CPU) captureExchangePackage() exchangePackage {
	return exchangePackage{
		P: c.P, RaCm: c.RaCm, FlCm: c.FlCm, RaEcs: c.RaEcs, FlEcs: c.FlEcs,
		MA: c.MA, ExitMode: c.ExitMode, A: c.A, B: c.B, X: c.X,
	}
}

func (c *CPU) loadExchangePackage(addr uint32) {
	words := make([]uint64, 16)
	for i := range words {
		words[i] = c.cm.Read(addr + uint32(i))
	}
	c.P = uint32(words[0]) & word.Mask18
	c.A[0] = uint32(words[0]>>18) & word.Mask18
	c.RaCm = uint32(words[1]>>36) & word.Mask24
	c.A[1] = uint32(words[1]>>18) & word.Mask18
	c.B[1] = uint32(words[1]) & word.Mask18
	c.FlCm = uint32(words[2]>>36) & word.Mask24
	c.A[2] = uint32(words[2]>>18) & word.Mask18
	c.B[2] = uint32(words[2]) & word.Mask18
	c.ExitMode = uint32(words[3]>>36) & word.Mask24
	c.A[3] = uint32(words[3]>>18) & word.Mask18
	c.B[3] = uint32(words[3]) & word.Mask18
	ecsWidth := uint32(word.Mask24)
	if c.features.Has(model.IsSeries800) && c.ExitMode&modeExpandedAddress != 0 {
		ecsWidth = word.Mask30
	}
	c.RaEcs = uint32(words[4]>>36) & ecsWidth
	c.A[4] = uint32(words[4]>>18) & word.Mask18
	c.B[4] = uint32(words[4]) & word.Mask18
	c.FlEcs = uint32(words[5]>>36) & ecsWidth
	c.A[5] = uint32(words[5]>>18) & word.Mask18
	c.B[5] = uint32(words[5]) & word.Mask18
	c.MA = uint32(words[6]>>36) & word.Mask24
	c.A[6] = uint32(words[6]>>18) & word.Mask18
	c.B[6] = uint32(words[6]) & word.Mask18
	c.A[7] = uint32(words[7]>>18) & word.Mask18
	c.B[7] = uint32(words[7]) & word.Mask18
	for i := 0; i < 8; i++ {
		c.X[i] = words[8+i] & word.Mask60
	}
	c.B[0] = 0
}

func (c *CPU) writeExchangePackage(addr uint32, pkg exchangePackage) {
	words := make([]uint64, 16)
	words[0] = uint64(pkg.A[0])<<18 | uint64(pkg.P)
	words[1] = uint64(pkg.RaCm)<<36 | uint64(pkg.A[1])<<18 | uint64(pkg.B[1])
	words[2] = uint64(pkg.FlCm)<<36 | uint64(pkg.A[2])<<18 | uint64(pkg.B[2])
	words[3] = uint64(pkg.ExitMode)<<36 | uint64(pkg.A[3])<<18 | uint64(pkg.B[3])
	words[4] = uint64(pkg.RaEcs)<<36 | uint64(pkg.A[4])<<18 | uint64(pkg.B[4])
	words[5] = uint64(pkg.FlEcs)<<36 | uint64(pkg.A[5])<<18 | uint64(pkg.B[5])
	words[6] = uint64(pkg.MA)<<36 | uint64(pkg.A[6])<<18 | uint64(pkg.B[6])
	words[7] = uint64(pkg.A[7])<<18 | uint64(pkg.B[7])
	for i := 0; i < 8; i++ {
		words[8+i] = pkg.X[i]
	}
	for i, w := range words {
		c.cm.Write(addr+uint32(i), w&word.Mask60)
	}
}

// detectIdleLoop implements §4.6's idle-loop optimization: strip leading
// 15-bit pass (047) parcels from the just-fetched word; if what remains is
// a 30-bit JP-to-self, mark the CPU stopped so the scheduler can skip it
// without giving up architectural semantics.
func (c *CPU) detectIdleLoop() {
	w := c.opWord
	offset := 60
	for offset >= 30 {
		parcel := (w >> uint(offset-15)) & 0x7fff
		opcode := (parcel >> 9) & 0x3f
		if opcode != 0o47 {
			break
		}
		offset -= 15
	}
	if offset < 30 {
		return
	}
	parcel30 := (w >> uint(offset-30)) & 0x3fffffff
	opcode := (parcel30 >> 24) & 0x3f
	addr := uint32(parcel30) & word.Mask18
	if opcode == 0o02 && addr == c.P {
		c.Stopped = true
	}
}

// Step consumes parcels from the current instruction word until opOffset
// reaches 0 or a jump/branch abandons the rest of the word, executing each
// opcode (§4.2). It returns false if the CPU stopped (via error exit, XJ
// exit, or the idle-loop heuristic).
func (c *CPU) Step() bool {
	if c.Stopped {
		return false
	}
	c.AdvanceClock()
	if c.opOffset == 0 || c.opOffset == 60 {
		c.opWord = c.fetchWord(c.absoluteP())
		c.opOffset = 60
	}

	for c.opOffset > 0 && !c.Stopped {
		c.B[0] = 0
		c.jumped = false
		c.yielded = false
		ok := c.stepParcel()
		c.B[0] = 0
		if !ok {
			return !c.Stopped
		}
		if c.jumped {
			c.opOffset = 60
			return !c.Stopped
		}
		if c.yielded {
			// §5: the XJ opcode may yield by rewinding P/opOffset when the
			// monitor token is contended, to be retried on a later tick
			// instead of busy-looping inside this Step call.
			return !c.Stopped
		}
	}
	if c.opOffset <= 0 {
		c.P++
		c.opOffset = 60
	}
	return !c.Stopped
}

// stepParcel decodes and executes exactly one parcel, advancing opOffset.
// It returns false if decode hit an illegal-packing condition.
func (c *CPU) stepParcel() bool {
	startOffset := c.opOffset
	fm := int((c.opWord >> uint(c.opOffset-6)) & 0x3f)
	length := opcodeLength(fm, c)
	if length == 30 && c.opOffset == 15 {
		c.OpIllegal()
		return false
	}
	i := int((c.opWord >> uint(c.opOffset-9)) & 0x7)
	j := int((c.opWord >> uint(c.opOffset-12)) & 0x7)
	var k int
	var opAddress uint32
	if length == 15 {
		k = int((c.opWord >> uint(c.opOffset-15)) & 0x7)
		c.opOffset -= 15
	} else {
		opAddress = uint32(c.opWord>>uint(c.opOffset-30)) & word.Mask18
		c.opOffset -= 30
	}
	dec := decoded{fm: fm, i: i, j: j, k: k, addr: opAddress, length: length, parcel0: startOffset == 60}
	c.execute(dec)
	return true
}

// opcodeLength returns the nominal parcel length for opcode fm (§4.2,
// §9's "64-entry table of tagged handlers"). Opcode 01 additionally
// consults its i sub-field via a secondary 8-entry table.
func opcodeLength(fm int, c *CPU) int {
	if fm == 0o01 {
		i := int((c.opWord >> uint(c.opOffset-9)) & 0x7)
		return op01Length[i]
	}
	return opcodeLengthTable[fm]
}

// op01Length gives opcode 01's 8 sub-operations their documented lengths
// (§4.3): 01.0-3 (RJ/REC/WEC/XJ) are 30-bit, 01.4-7 (RX/WX/RC/unused) are
// 15-bit.
var op01Length = [8]int{30, 30, 30, 30, 15, 15, 15, 15}

// opcodeLengthTable is the 64-entry nominal-length table (§4.2/§9); every
// entry is 15 except the ones 30-bit by definition (02-07, 01 handled
// separately, 50-52, 60-62, 70-72).
var opcodeLengthTable = func() [64]int {
	var t [64]int
	for i := range t {
		t[i] = 15
	}
	for _, op := range []int{0o02, 0o03, 0o04, 0o05, 0o06, 0o07,
		0o50, 0o51, 0o52, 0o60, 0o61, 0o62, 0o70, 0o71, 0o72} {
		t[op] = 30
	}
	return t
}()

// decoded is the instruction's parsed field set, passed to execute.
// parcel0 records whether this parcel began at word offset 60, the
// condition CMU (opcode 46.4-7) requires (§4.5).
type decoded struct {
	fm      int
	i, j, k int
	addr    uint32
	length  int
	parcel0 bool
}

// SetA assigns A[i], reproducing the reference machine's address-register
// side effects (§4.3.1): writing A1-A5 triggers a CM read into X1-X5, and
// writing A6-A7 triggers a CM write of X6-X7 (voiding the i-stack first
// when StackPurge is set). A0 has no side effect.
func (c *CPU) SetA(i int, val uint32) {
	c.A[i] = val & word.Mask18
	switch {
	case i >= 1 && i <= 5:
		v, ok := c.ReadMem(c.A[i])
		if ok {
			c.X[i] = v
		}
	case i == 6 || i == 7:
		if c.ExitMode&modeStackPurge != 0 {
			c.voidIwStack(^uint32(0))
		}
		c.WriteMem(c.A[i], c.X[i])
	}
}

// jumpTo sets P to addr (masked to 18 bits) and abandons the remainder of
// the current instruction word, matching the reference machine's rule
// that a taken branch always starts fetch at the new P (§4.2).
func (c *CPU) jumpTo(addr uint32) {
	c.P = addr & word.Mask18
	c.jumped = true
}

// signExtend18 sign-extends an 18-bit one's-complement value to 60 bits,
// for the SXi register-forming group (opcodes 70-77).
func signExtend18(v uint32) uint64 {
	v &= word.Mask18
	if v&0o400000 != 0 {
		return uint64(v) | (word.Mask60 &^ uint64(word.Mask18))
	}
	return uint64(v)
}

// execute dispatches one decoded parcel against §4.3's opcode table:
//
//	00        PS / error-exit, conditional on model and monitor state
//	01.0-6    RJ / REC / WEC / XJ / RX / WX / RC
//	02        JP Bi+K, unconditional jump
//	03.i      8-way conditional jump on Xj
//	04-07     EQ/NE/GE/LT Bi,Bj,K branches
//	10-17     Boolean register ops
//	20-23     literal/variable shifts
//	24-27     floating normalize/pack/unpack
//	30-37     FX/DX/RX add/sub, IX add/sub
//	40-45     FX/DX/RX multiply/divide, 43 overridden as MX
//	46.4-7    CMU move/compare (parcel 0 only)
//	47        CXi population count
//	50-57     SAi
//	60-67     SBi (66.0/67.0 reinterpreted as CR/CW on Series-800)
//	70-77     SXi
//
// The floating and CMU groups are rendered as a fixed-point approximation
// of the reference machine's byte- and exponent-oriented microcode rather
// than bit-for-bit — see DESIGN.md.
func (c *CPU) execute(d decoded) {
	switch d.fm {
	case 0o00: // PS / error-exit (§4.3).
		if c.features.Has(model.IsSeries6x00) || c.features.Has(model.HasNoCejMej) || c.token.Current() == int8(c.id) {
			c.Stopped = true
		} else {
			c.OpIllegal()
		}

	case 0o01: // RJ / REC / WEC / XJ / RX / WX / RC, selected by i.
		switch d.i {
		case 0:
			c.returnJump(d)
		case 1:
			c.blockTransfer(false, d)
		case 2:
			c.blockTransfer(true, d)
		case 3:
			c.execXJ(d)
		case 4:
			if c.features.Has(Is865) {
				c.ecsSingleWord(false, d)
			} else {
				c.OpIllegal()
			}
		case 5:
			if c.features.Has(Is865) {
				c.ecsSingleWord(true, d)
			} else {
				c.OpIllegal()
			}
		case 6:
			if c.features.Has(model.HasMicrosecondClock) {
				c.X[d.j] = c.Clock & word.Mask60
			} else {
				c.OpIllegal()
			}
		default:
			c.OpIllegal()
		}

	case 0o02: // JP: jump to Bi+K, void i-stack unconditionally.
		c.jumpTo(word.Add18(c.B[d.i], d.addr))
		c.voidIwStack(^uint32(0))
	case 0o03: // 8-way conditional jump on Xj.
		c.condJump(d)
	case 0o04, 0o05, 0o06, 0o07: // EQ/NE/GE/LT Bi,Bj,K.
		c.branchCompare(d)

	case 0o10: // BXi: transmit.
		c.X[d.i] = c.X[d.j]
	case 0o11: // BXi: AND.
		c.X[d.i] = c.X[d.j] & c.X[d.k]
	case 0o12: // BXi: OR.
		c.X[d.i] = c.X[d.j] | c.X[d.k]
	case 0o13: // BXi: XOR.
		c.X[d.i] = c.X[d.j] ^ c.X[d.k]
	case 0o14: // BXi: complement.
		c.X[d.i] = word.Mask60 &^ c.X[d.j]
	case 0o15: // BXi: AND-NOT.
		c.X[d.i] = c.X[d.j] &^ c.X[d.k]
	case 0o16: // BXi: NOR.
		c.X[d.i] = word.Mask60 &^ (c.X[d.j] | c.X[d.k])
	case 0o17: // BXi: XNOR.
		c.X[d.i] = word.Mask60 &^ (c.X[d.j] ^ c.X[d.k])

	case 0o20: // LXi: shift left circular, literal count.
		c.X[d.i] = word.ShiftLeftCircular(c.X[d.j], shiftCount(d))
	case 0o21: // AXi: shift right arithmetic, literal count.
		c.X[d.i] = word.ShiftRightArithmetic(c.X[d.j], shiftCount(d))
	case 0o22: // LXi: shift left/right circular, count and direction from Bj.
		c.X[d.i] = variableShiftLeft(c.X[d.k], c.B[d.j])
	case 0o23: // AXi: shift left/right arithmetic, count and direction from Bj.
		c.X[d.i] = variableShiftRight(c.X[d.k], c.B[d.j])
	case 0o24: // NX: floating normalize (rendered as a signaling pass-through).
		c.X[d.i] = c.X[d.k]
		c.FloatCheck(c.X[d.k])
		c.floatExceptionHandler()
	case 0o25: // ZX: normalize with zero exponent.
		c.X[d.i] = c.X[d.k] &^ (uint64(word.Mask12) << 48)
		c.FloatCheck(c.X[d.k])
		c.floatExceptionHandler()
	case 0o26: // UX: unpack into exponent (Bj) / coefficient (Xi).
		if d.j != 0 {
			c.B[d.j] = (uint32(c.X[d.k]>>48) & word.Mask12)
		}
		c.X[d.i] = c.X[d.k] & ((uint64(1) << 48) - 1)
	case 0o27: // PX: pack exponent (Bj, if nonzero) and coefficient (Xk) into Xi.
		var exp uint64
		if d.j != 0 {
			exp = uint64(c.B[d.j]) & uint64(word.Mask12)
		}
		c.X[d.i] = (exp << 48) | (c.X[d.k] & ((uint64(1) << 48) - 1))

	case 0o30: // FX add.
		c.X[d.i] = word.Add60(c.X[d.j], c.X[d.k])
	case 0o31: // FX subtract.
		c.X[d.i] = word.Subtract60(c.X[d.j], c.X[d.k])
	case 0o32: // DX add.
		c.X[d.i] = word.Add60(c.X[d.j], c.X[d.k])
	case 0o33: // DX subtract.
		c.X[d.i] = word.Subtract60(c.X[d.j], c.X[d.k])
	case 0o34: // RX add (rounded).
		c.X[d.i] = word.Add60(c.X[d.j], c.X[d.k])
	case 0o35: // RX subtract.
		c.X[d.i] = word.Subtract60(c.X[d.j], c.X[d.k])
	case 0o36: // IXi: X[i] = X[j] + X[k].
		c.X[d.i] = word.Add60(c.X[d.j], c.X[d.k])
	case 0o37: // IXi: X[i] = X[j] - X[k].
		c.X[d.i] = word.Subtract60(c.X[d.j], c.X[d.k])

	case 0o40: // FX multiply.
		c.floatMultiply(d)
	case 0o41: // FX divide.
		c.floatDivide(d)
	case 0o42: // DX multiply.
		c.floatMultiply(d)
	case 0o43: // MX: form an n-bit literal mask into Xi.
		c.maskForm(d)
	case 0o44: // RX multiply.
		c.floatMultiply(d)
	case 0o45: // RX divide.
		c.floatDivide(d)
	case 0o46: // CMU move/compare (46.4-7); other sub-opcodes are NO.
		switch d.i {
		case 4, 5, 6, 7:
			c.cmuDispatch(d)
		}
	case 0o47: // CXi: population count.
		c.X[d.i] = uint64(word.PopCount60(c.X[d.j]))

	case 0o50: // SAi: A[i] = addr (direct literal).
		c.SetA(d.i, d.addr)
	case 0o51: // SAi: A[i] = B[j] + addr.
		c.SetA(d.i, word.Add18(c.B[d.j], d.addr))
	case 0o52: // SAi: A[i] = A[j] + addr.
		c.SetA(d.i, word.Add18(c.A[d.j], d.addr))
	case 0o53: // SAi: A[i] = B[j] + k.
		c.SetA(d.i, word.Add18(c.B[d.j], uint32(d.k)))
	case 0o54: // SAi: A[i] = A[j] + k.
		c.SetA(d.i, word.Add18(c.A[d.j], uint32(d.k)))
	case 0o55: // SAi: A[i] = A[j] (transmit).
		c.SetA(d.i, c.A[d.j])
	case 0o56: // SAi: A[i] = X[j] low 18 bits.
		c.SetA(d.i, uint32(c.X[d.j])&word.Mask18)
	case 0o57: // SAi: A[i] = B[j] (transmit).
		c.SetA(d.i, c.B[d.j])

	case 0o60: // SBi: B[i] = addr (direct literal).
		c.B[d.i] = d.addr & word.Mask18
	case 0o61: // SBi: B[i] = B[j] + addr.
		c.B[d.i] = word.Add18(c.B[d.j], d.addr)
	case 0o62: // SBi: B[i] = A[j] + addr.
		c.B[d.i] = word.Add18(c.A[d.j], d.addr)
	case 0o63: // SBi: B[i] = B[j] + k.
		c.B[d.i] = word.Add18(c.B[d.j], uint32(d.k))
	case 0o64: // SBi: B[i] = A[j] + k.
		c.B[d.i] = word.Add18(c.A[d.j], uint32(d.k))
	case 0o65: // SBi: B[i] = A[j] (transmit).
		c.B[d.i] = c.A[d.j]
	case 0o66: // SBi: B[i] = X[j] low 18 bits; CR on Series-800 when i==0.
		if d.i == 0 && c.features.Has(model.IsSeries800) {
			c.directCmRead(d)
		} else {
			c.B[d.i] = uint32(c.X[d.j]) & word.Mask18
		}
	case 0o67: // SBi: B[i] = B[j] (transmit); CW on Series-800 when i==0.
		if d.i == 0 && c.features.Has(model.IsSeries800) {
			c.directCmWrite(d)
		} else {
			c.B[d.i] = c.B[d.j]
		}

	case 0o70: // SXi: X[i] = sign-extend(addr).
		c.X[d.i] = signExtend18(d.addr)
	case 0o71: // SXi: X[i] = sign-extend(B[j] + addr).
		c.X[d.i] = signExtend18(word.Add18(c.B[d.j], d.addr))
	case 0o72: // SXi: X[i] = sign-extend(B[j] - addr).
		c.X[d.i] = signExtend18(word.Subtract18(c.B[d.j], d.addr))
	case 0o73: // SXi: X[i] = sign-extend(B[j] + k).
		c.X[d.i] = signExtend18(word.Add18(c.B[d.j], uint32(d.k)))
	case 0o74: // SXi: X[i] = sign-extend(B[j] - k).
		c.X[d.i] = signExtend18(word.Subtract18(c.B[d.j], uint32(d.k)))
	case 0o75: // SXi: X[i] = sign-extend(A[j]).
		c.X[d.i] = signExtend18(c.A[d.j])
	case 0o76: // SXi: X[i] = sign-extend(B[j]).
		c.X[d.i] = signExtend18(c.B[d.j])
	case 0o77: // SXi: X[i] = sign-extend(X[j] low 18 bits).
		c.X[d.i] = signExtend18(uint32(c.X[d.j]) & word.Mask18)
	}
}

// directCmRead implements the Series-800 CR reinterpretation of 66.0
// (§4.3): X[j] = CM[X[k] & 21 bits], bypassing the A-register side effect.
func (c *CPU) directCmRead(d decoded) {
	addr := uint32(c.X[d.k]) & word.Mask21
	if v, ok := c.ReadMem(addr); ok {
		c.X[d.j] = v
	}
}

// directCmWrite implements the Series-800 CW reinterpretation of 67.0.
func (c *CPU) directCmWrite(d decoded) {
	addr := uint32(c.X[d.k]) & word.Mask21
	c.WriteMem(addr, c.X[d.j])
}

// returnJump implements opcode 01.0 RJ K (§4.3): write a self-contained
// return jump (a parcel-0 JP-to-P+1 instruction occupying the high 30 bits
// of the word, matching this engine's own 30-bit encoding convention) to
// M[K], then continue execution at K.
func (c *CPU) returnJump(d decoded) {
	ret := (uint64(0o02) << 54) | (uint64(word.Add18(c.P, 1)) << 30)
	c.WriteMem(d.addr, ret)
	c.jumpTo(d.addr)
	c.voidIwStack(^uint32(0))
}

// execXJ implements opcode 01.3 XJ (§4.6): if this CPU currently holds the
// monitor token, exit monitor mode and exchange-jump to addr+Bj; otherwise
// attempt to enter monitor mode at MA, rewinding this instruction to retry
// on the scheduler's next tick if the token is held by the sibling CPU.
func (c *CPU) execXJ(d decoded) {
	if c.token.Current() == int8(c.id) {
		c.Stopped = true
		target := word.Add18(d.addr, c.B[d.j])
		c.doExchangeJump(target, -1, sourceCPU)
		return
	}

	if c.doExchangeJump(c.MA, c.id, sourceCPU) {
		return
	}

	// Contended: the sibling CPU holds the monitor token. Rewind this
	// instruction and yield; the scheduler's own tick cadence provides the
	// retry interval §5 describes, rather than a timed condition wait.
	c.rewindParcel(d)
}

func (c *CPU) rewindParcel(d decoded) {
	c.opOffset += d.length
	c.yielded = true
}

// branchCompare implements opcodes 04-07, EQ/NE/GE/LT Bi,Bj,K: a one's
// complement subtraction of B[i]-B[j], compared against zero, branching to
// K when the named condition holds (§4.3).
func (c *CPU) branchCompare(d decoded) {
	diff := word.Subtract18(c.B[d.i], c.B[d.j]) & word.Mask18
	isZero := diff == 0 || diff == word.Mask18
	isNeg := !isZero && diff&0o400000 != 0

	var take bool
	switch d.fm {
	case 0o04: // EQ
		take = isZero
	case 0o05: // NE
		take = !isZero
	case 0o06: // GE
		take = !isNeg
	case 0o07: // LT
		take = isNeg
	}
	if take {
		c.jumpTo(d.addr)
		c.voidIwStackConditional(d.addr)
	}
}

// condJump implements opcode 03.i, the 8-way conditional jump on Xj
// (§4.3): zero, non-zero, plus, minus, in-range, out-of-range, definite,
// indefinite, selected by i. In-range/out-of-range and definite/indefinite
// are FloatCheck's exponent classification (§4.3.2).
func (c *CPU) condJump(d decoded) {
	x := c.X[d.j]
	outOfRange, indefinite := floatCheck(x)

	var take bool
	switch d.i {
	case 0: // zero
		take = x == 0
	case 1: // non-zero
		take = x != 0
	case 2: // plus
		take = x != 0 && !word.IsNegative60(x)
	case 3: // minus
		take = word.IsNegative60(x)
	case 4: // in-range
		take = !outOfRange
	case 5: // out-of-range
		take = outOfRange
	case 6: // definite
		take = !indefinite
	case 7: // indefinite
		take = indefinite
	}
	if take {
		c.jumpTo(d.addr)
		c.voidIwStackConditional(d.addr)
	}
}

// floatCheck classifies a 60-bit word's top 12 bits (its biased exponent
// field) per §4.3.2: 3777/4000 octal mark infinities (out-of-range),
// 1777/6000 mark indefinites.
func floatCheck(v uint64) (outOfRange, indefinite bool) {
	exp := uint16(v>>48) & 0xfff
	switch exp {
	case 0o3777, 0o4000:
		return true, false
	case 0o1777, 0o6000:
		return false, true
	}
	return false, false
}

// FloatCheck applies floatCheck to v and latches the corresponding exit
// condition and float-exception flag (§4.3.2).
func (c *CPU) FloatCheck(v uint64) {
	outOfRange, indefinite := floatCheck(v)
	if outOfRange {
		c.ExitCond |= EcOperandOutOfRange
		c.FloatException = true
	}
	if indefinite {
		c.ExitCond |= EcIndefiniteOperand
		c.FloatException = true
	}
}

// floatExceptionHandler consumes a pending FloatException, performing the
// standard error-exit sequence if exitMode enables trapping for whichever
// exit-condition bit FloatCheck just latched (§4.3.2).
func (c *CPU) floatExceptionHandler() {
	if !c.FloatException {
		return
	}
	c.FloatException = false
	if c.trapEnabled(c.ExitCond) {
		c.errorExit()
	}
}

// shiftCount derives a 0-59 shift count from the combined j/k fields of a
// 15-bit literal shift instruction, since a single 3-bit k field cannot
// span the full 60-bit rotate range.
func shiftCount(d decoded) uint {
	return uint(d.j*8+d.k) % 60
}

// signedShiftAmount decodes a B register holding a one's-complement signed
// shift amount (opcodes 22/23): its sign selects direction, its magnitude
// is the shift count.
func signedShiftAmount(bReg uint32) (amt uint, neg bool) {
	v := bReg & word.Mask18
	neg = v&0o400000 != 0
	if neg {
		v = (^v) & word.Mask18
	}
	return uint(v), neg
}

// variableShiftLeft implements opcode 22 (LXi, variable form): circular
// left by the magnitude of bReg, or circular right if bReg is negative.
func variableShiftLeft(x uint64, bReg uint32) uint64 {
	amt, neg := signedShiftAmount(bReg)
	if neg {
		return word.ShiftLeftCircular(x, (60-(amt%60))%60)
	}
	return word.ShiftLeftCircular(x, amt)
}

// variableShiftRight implements opcode 23 (AXi, variable form): arithmetic
// right by the magnitude of bReg (0 beyond 63, per §4.3), or circular left
// if bReg is negative.
func variableShiftRight(x uint64, bReg uint32) uint64 {
	amt, neg := signedShiftAmount(bReg)
	if neg {
		return word.ShiftLeftCircular(x, amt)
	}
	if amt > 63 {
		return 0
	}
	return word.ShiftRightArithmetic(x, amt)
}

// floatMultiply/floatDivide render the FX/DX/RX multiply/divide band
// (opcodes 40,42,44 / 41,45) as fixed-point operations, signaling a
// divide-by-zero as an indefinite operand (§4.3, DESIGN.md).
func (c *CPU) floatMultiply(d decoded) {
	c.X[d.i] = (c.X[d.j] * c.X[d.k]) & word.Mask60
}

func (c *CPU) floatDivide(d decoded) {
	if c.X[d.k] == 0 {
		c.ExitCond |= EcIndefiniteOperand
		if c.trapEnabled(EcIndefiniteOperand) {
			c.errorExit()
		}
		return
	}
	c.X[d.i] = (c.X[d.j] / c.X[d.k]) & word.Mask60
}

// maskForm implements opcode 43 MX jk: form a literal bit-count mask (the
// low n bits set) into Xi, n taken from the combined j/k fields.
func (c *CPU) maskForm(d decoded) {
	count := shiftCount(d)
	if count >= 60 {
		c.X[d.i] = word.Mask60
		return
	}
	c.X[d.i] = (uint64(1) << count) - 1
}

// cmuDispatch implements opcode 46.4-7 CMU (§4.5): it must occupy parcel 0
// (the instruction's first 15-bit slot); otherwise it passes on series 70
// and is illegal elsewhere, gated the same way every other model-dependent
// opcode in this package is gated (a Feature bit checked at dispatch time).
func (c *CPU) cmuDispatch(d decoded) {
	if !c.features.Has(model.HasCMU) {
		c.OpIllegal()
		return
	}
	if !d.parcel0 {
		if c.features.Has(model.IsSeries70) {
			return // Pass.
		}
		c.OpIllegal()
		return
	}
	c.cmuMove(d.i)
}

// cmuMove implements a reduced rendition of the CMU compare/move block
// instruction (§4.5 "CMU move/compare"): it copies one CM word from the
// address in A1 to the address in A2 and decrements A3 as a block count,
// rather than reproducing the reference's full byte-oriented compare/move
// microcode — see DESIGN.md.
func (c *CPU) cmuMove(sub int) {
	if c.A[3] == 0 {
		return
	}
	v, ok := c.ReadMem(c.A[1])
	if !ok {
		return
	}
	if sub%2 == 0 { // even sub-opcodes move, odd ones compare only.
		c.WriteMem(c.A[2], v)
	} else if v != c.X[0] {
		c.ExitCond |= EcOperandOutOfRange
	}
	c.A[1] = word.Add18(c.A[1], 1)
	c.A[2] = word.Add18(c.A[2], 1)
	c.A[3]--
}

// blockTransfer implements opcodes 01.1 (REC) and 01.2 (WEC): §4.4's
// UemTransfer/EcsTransfer block copy between CM and the shared ECS store.
// This build does not model a distinct UEM address space separate from
// ECS (see DESIGN.md); both opcodes route through the one shared c.ecs
// store, word count from Bj+opAddress (777777 octal wraps to 0), CM
// address from A0 (or, under EnhancedBlockCopy, bits 30-50 of X0), and
// the ECS/UEM address from X0's low bits.
func (c *CPU) blockTransfer(write bool, d decoded) {
	count := word.Add18(c.B[d.j], d.addr)
	if count == word.Mask18 {
		count = 0
	}
	if count&0o400000 != 0 { // negative count: fail like ReadMem.
		c.rangeFail()
		return
	}

	cmAddr := c.A[0]
	extAddr := uint32(c.X[0]) & word.Mask24
	if c.ExitMode&modeEnhancedBlockCopy != 0 {
		cmAddr = uint32(c.X[0]>>30) & word.Mask21
		extAddr = uint32(c.X[0]) & word.Mask30
	}

	const bit21 = uint32(1) << 21
	const bit22 = uint32(1) << 22
	uemFlagged := extAddr&bit21 != 0 || extAddr&bit22 != 0

	for i := uint32(0); i < count; i++ {
		if write {
			v, ok := c.ReadMem(cmAddr)
			if !ok {
				return
			}
			c.ecs.Write(extAddr, v)
		} else {
			v := c.ecs.Read(extAddr)
			if uemFlagged {
				v = 0
			}
			if !c.WriteMem(cmAddr, v) {
				return
			}
		}
		if c.cm.Size() > 0 {
			cmAddr = word.Add24(cmAddr, 1) % c.cm.Size()
		}
		extAddr = word.Add24(extAddr, 1)
	}

	if uemFlagged {
		c.Stopped = true
		c.P = 1
	}
}

// ecsFlagAccess implements the ECS flag register's sub-function protocol
// (§4.4): when bit 23 of both addr and FlEcs is set, bits 21-23 of addr
// select a sub-function against flagWord instead of a normal ECS access.
func (c *CPU) ecsFlagAccess(addr uint32, flagWord uint32) (handled bool, ok bool) {
	const flagBit = uint32(1) << 23
	if addr&flagBit == 0 || c.FlEcs&flagBit == 0 {
		return false, false
	}
	subFn := int(addr>>21) & 0x7
	return true, c.ecs.FlagRegisterOp(subFn, flagWord)
}

// ecsSingleWord implements opcodes 01.4 (RX) and 01.5 (WX), §4.4's
// UemWord/EcsWord: a single-word ECS/UEM transfer through Xk as the
// address and Xj as the data register. Bits 21/22 of the address must be
// zero; otherwise the read path zeros Xj and the write path skips the
// store (865 only, gated by the caller).
func (c *CPU) ecsSingleWord(write bool, d decoded) {
	addr := uint32(c.X[d.k]) & word.Mask24

	if handled, ok := c.ecsFlagAccess(addr, uint32(c.X[d.j])&word.Mask18); handled {
		if ok {
			c.X[d.j] = 1
		} else {
			c.X[d.j] = 0
		}
		return
	}

	const bit21 = uint32(1) << 21
	const bit22 = uint32(1) << 22
	blocked := addr&(bit21|bit22) != 0

	if write {
		if blocked {
			return
		}
		if addr >= c.FlEcs || c.ecs.Size() == 0 {
			c.rangeFail()
			return
		}
		c.ecs.Write(c.RaEcs+addr, c.X[d.j])
		return
	}

	if blocked {
		c.X[d.j] = 0
		return
	}
	if addr >= c.FlEcs || c.ecs.Size() == 0 {
		c.rangeFail()
		return
	}
	c.X[d.j] = c.ecs.Read(c.RaEcs + addr)
}
