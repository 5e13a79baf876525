/*
 * cyber6000 - Peripheral Processor engine.
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

// Package pp implements the 12-bit Peripheral Processor: its 4 KW private
// memory, the 64-opcode instruction set (§4.7), and the cooperative busy
// state machine multi-word I/O and CPU-memory opcodes use instead of
// blocking the scheduler tick. Grounded on
// original_source/CppCyber/Mpp.cpp, reshaped into the same per-unit
// struct-plus-methods idiom internal/cpu's CPU type uses.
package pp

import (
	"github.com/dtcyber-go/cyber6000/internal/channel"
	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

// MemSize is the size of a PP's private memory, 4 KW.
const MemSize = 4096

// CPU is the subset of the CPU engine a PP needs to drive EXN/MXN/MAN and
// RPN (§4.7 opcodes 26, 27). Declared here, implemented by *cpu.CPU, to
// keep this package independent of the cpu package (mainframe wires them
// together).
type CPU interface {
	ID() int
	PReg() uint32
	MAReg() uint32
	// ExchangeJump attempts the exchange jump this PP is requesting on the
	// CPU's behalf; monitorReq follows the §4.6 convention (-1 leave, id
	// enter, 2 no-change). It returns whether the CPU accepted it.
	ExchangeJump(addr uint32, monitorReq int, source int) bool
}

// PP is one Peripheral Processor: 12-bit machine, 4KW private memory, an
// 18-bit A, a 28-bit relocation register R, a 12-bit P, and the busy flag
// multi-step opcodes use.
type PP struct {
	ID uint8

	Mem [MemSize]uint16

	A uint32 // 18-bit.
	R uint32 // 28-bit relocation register.
	P uint16 // 12-bit.
	Q uint16 // 12-bit.

	Busy bool
	OpF  uint8 // Latched opcode, top 6 bits of mem[P].
	OpD  uint8 // Latched operand, low 6 bits of mem[P].

	// step tracks progress through a multi-tick opcode (CRM/CWM/IAM/OAM).
	step int

	// stash holds whichever multi-tick opcode's state is in progress
	// (cmMultiWordOp or ioMultiWordOp); nil when not Busy.
	stash interface{}
}

// New returns a PP at rest (not busy, all registers zero).
func New(id uint8) *PP {
	return &PP{ID: id}
}

// rd/wr wrap 12-bit PP memory addressing.
func (p *PP) rd(addr uint16) uint16 { return p.Mem[addr&0xfff] }
func (p *PP) wr(addr uint16, v uint16) { p.Mem[addr&0xfff] = v & 0xfff }

// addOffset applies the reference implementation's deliberate -1 bias
// indexed-addressing macro (Mpp.cpp AddOffset/IndexLocation): the operand
// word is decremented by one before any index is added, and a 12-bit
// wraparound of that decrement adds one back, so 0 and 0o7777 behave
// identically whether or not indexing is in play.
func addOffset(base uint16, offset uint16) uint16 {
	v := base + offset - 1
	if v&0x1000 != 0 {
		v++
	}
	return v & 0xfff
}

// indexedAddress computes the operand address for LJM/RJM/UJN/ZJN/NJN/
// PJN/MJN: the word at P (already latched as the opcode word's second
// half via OpD when indexed) optionally added to mem[opD].
func (p *PP) indexedAddress() uint16 {
	operand := p.rd(p.P)
	p.P++
	if p.OpD != 0 {
		operand = addOffset(operand, p.rd(uint16(p.OpD))+1)
	}
	return operand & 0xfff
}

// PpReadMem reads a CM word on the PP's behalf (CRD/CRM family). When the
// 18-bit address's sign bit (bit 17) is set, the relocation register R is
// consulted, as §4.7 requires ("PpReadMem/PpWriteMem, which consult
// relocation register R when A's sign bit is set").
func (p *PP) PpReadMem(cm *memory.CentralMemory, addr uint32) uint64 {
	return cm.Read(p.relocate(addr))
}

// PpWriteMem writes a CM word on the PP's behalf.
func (p *PP) PpWriteMem(cm *memory.CentralMemory, addr uint32, val uint64) {
	cm.Write(p.relocate(addr), val)
}

func (p *PP) relocate(addr uint32) uint32 {
	const signBit = 1 << 17
	if addr&signBit != 0 {
		return (p.R + (addr &^ signBit)) & 0x3ffffff
	}
	return addr & 0x3ffff
}

// Step executes one instruction, or resumes a busy multi-step opcode, for
// one scheduler tick.
func (p *PP) Step(cm *memory.CentralMemory, channels []*channel.Channel, cpus []CPU, features model.Feature) {
	if p.Busy {
		p.resume(cm, channels, cpus, features)
		return
	}

	word := p.rd(p.P)
	p.OpF = uint8((word >> 6) & 0x3f)
	p.OpD = uint8(word & 0x3f)
	p.P++
	p.dispatch(cm, channels, cpus, features)
}

func (p *PP) channelFor(channels []*channel.Channel) *channel.Channel {
	idx := int(p.OpD & 0o37)
	if idx >= len(channels) {
		return nil
	}
	return channels[idx]
}

func (p *PP) dispatch(cm *memory.CentralMemory, channels []*channel.Channel, cpus []CPU, features model.Feature) {
	switch p.OpF {
	case 0o00: // PSN
	case 0o01: // LJM
		p.P = p.indexedAddress()
	case 0o02: // RJM
		target := p.indexedAddress()
		p.wr(target, p.P)
		p.P = target + 1
	case 0o03: // UJN
		p.P = addOffset(p.P, p.rd(p.P))
	case 0o04: // ZJN
		p.shortCondJump(func() bool { return p.A == 0 })
	case 0o05: // NJN
		p.shortCondJump(func() bool { return p.A != 0 })
	case 0o06: // PJN
		p.shortCondJump(func() bool { return p.A&0o400000 == 0 && p.A != 0 })
	case 0o07: // MJN
		p.shortCondJump(func() bool { return p.A&0o400000 != 0 })
	case 0o10: // SHN
		p.shiftA()
	case 0o11: // LMN
		p.A ^= uint32(p.OpD)
	case 0o12: // LPN
		p.A &= uint32(p.OpD)
	case 0o13: // SCN
		p.A &^= uint32(p.OpD)
	case 0o14: // LDN
		p.A = uint32(p.OpD)
	case 0o15: // LCN
		p.A = (^uint32(p.OpD)) & 0x3ffff
	case 0o16: // ADN
		p.A = (p.A + uint32(p.OpD)) & 0x3ffff
	case 0o17: // SBN
		p.A = (p.A - uint32(p.OpD)) & 0x3ffff
	case 0o20: // LDC
		p.A = uint32(p.OpD)<<12 | uint32(p.rd(p.P))
		p.P++
	case 0o21: // ADC
		p.A = (p.A + (uint32(p.OpD)<<12 | uint32(p.rd(p.P)))) & 0x3ffff
		p.P++
	case 0o22: // LPC
		p.A &= uint32(p.OpD)<<12 | uint32(p.rd(p.P))
		p.P++
	case 0o23: // LMC
		p.A ^= uint32(p.OpD)<<12 | uint32(p.rd(p.P))
		p.P++
	case 0o24: // LRD
		if features.Has(model.HasRelocationReg) {
			p.R = (uint32(p.rd(p.P)) << 12) | uint32(p.rd(p.P+1))
			p.P += 2
		}
	case 0o25: // SRD
		if features.Has(model.HasRelocationReg) {
			p.wr(p.P, uint16(p.R>>12))
			p.wr(p.P+1, uint16(p.R))
			p.P += 2
		}
	case 0o26: // EXN/MXN/MAN
		p.exchangeOpcode(cpus, features)
	case 0o27: // RPN
		if isModel865Gated(features) && len(cpus) > 0 {
			cpuID := int(p.OpD & 0o7)
			if cpuID < len(cpus) {
				p.A = cpus[cpuID].PReg() & 0x3ffff
			}
		}
	case 0o30, 0o31, 0o32, 0o33, 0o34, 0o35, 0o36, 0o37: // LDD..SOD direct
		p.memOpDirect(cm, p.rd(p.P))
		p.P++
	case 0o40, 0o41, 0o42, 0o43, 0o44, 0o45, 0o46, 0o47: // indirect
		addr := p.rd(p.rd(p.P))
		p.P++
		p.memOpIndirect(cm, addr)
	case 0o50, 0o51, 0o52, 0o53, 0o54, 0o55, 0o56, 0o57: // indexed
		addr := p.rd(p.P) + uint16(p.A)
		p.P++
		p.memOpIndexed(cm, addr&0xfff)
	case 0o60: // CRD
		target := p.rd(p.P)
		p.P++
		val := p.PpReadMem(cm, uint32(p.A))
		p.wr(target, uint16(val>>48))
		p.wr(target+1, uint16(val>>36)&0xfff)
		p.wr(target+2, uint16(val>>24)&0xfff)
		p.wr(target+3, uint16(val>>12)&0xfff)
		p.wr(target+4, uint16(val)&0xfff)
	case 0o61: // CRM
		p.beginMultiWord(cm, channels, true)
	case 0o62: // CWD
		target := p.rd(p.P)
		p.P++
		var val uint64
		for i := uint16(0); i < 5; i++ {
			val = (val << 12) | uint64(p.rd(target+i))
		}
		p.PpWriteMem(cm, p.A, val)
	case 0o63: // CWM
		p.beginMultiWord(cm, channels, false)
	case 0o64: // AJM
		p.channelCondJump(channels, func(c *channel.Channel) bool { return c.Active })
	case 0o65: // IJM
		p.channelCondJump(channels, func(c *channel.Channel) bool { return !c.Active })
	case 0o66: // FJM
		p.channelCondJump(channels, func(c *channel.Channel) bool { return c.Full })
	case 0o67: // EJM
		p.channelCondJump(channels, func(c *channel.Channel) bool { return !c.Full })
	case 0o70: // IAN
		p.beginIO(channels, true, false)
	case 0o71: // IAM
		p.beginIO(channels, true, true)
	case 0o72: // OAN
		p.beginIO(channels, false, false)
	case 0o73: // OAM
		p.beginIO(channels, false, true)
	case 0o74: // ACN
		if c := p.channelFor(channels); c != nil {
			c.Activate()
		}
	case 0o75: // DCN
		if c := p.channelFor(channels); c != nil {
			c.Disconnect()
		}
	case 0o76: // FAN
		if c := p.channelFor(channels); c != nil {
			c.Function(uint16(p.A) & 0xfff)
		}
	case 0o77: // FNC
		code := p.rd(p.P)
		p.P++
		if c := p.channelFor(channels); c != nil {
			c.Function(code)
		}
	}
}

// Is865 is set by the mainframe alongside the regular feature bitset when
// the configured model is 865, so the PP engine can gate RPN without
// importing the model package's Type (RPN is gated on model identity, not
// a feature bit, per SPEC_FULL.md §1c).
const Is865 model.Feature = 1 << 31

func isModel865Gated(features model.Feature) bool {
	return features.Has(Is865)
}

func (p *PP) shortCondJump(cond func() bool) {
	offset := p.rd(p.P)
	p.P++
	if cond() {
		p.P = addOffset(p.P-1, offset)
	}
}

func (p *PP) shiftA() {
	count := p.OpD & 0o37
	if p.OpD&0o40 != 0 {
		// Shift right.
		p.A = (p.A >> count) & 0x3ffff
	} else {
		for i := 0; i < int(count); i++ {
			bit := (p.A >> 17) & 1
			p.A = ((p.A << 1) | bit) & 0x3ffff
		}
	}
}

// channelCondJump implements AJM/IJM/FJM/EJM (§4.7): without the no-hang bit
// (opD&040) set, the PP must hang on the channel condition rather than fall
// through, so a failed test rewinds P back over both instruction words and
// leaves the PP to retry the same test on the scheduler's next tick. With
// the no-hang bit set, the opcode instead performs its SCF/CCF/SFM/CFM
// side effect on the channel flag and never hangs: SCF/SFM set the flag and
// jump if it was already set, CCF/CFM clear it and jump on the plain
// IJM/EJM channel condition; otherwise P falls through.
func (p *PP) channelCondJump(channels []*channel.Channel, cond func(*channel.Channel) bool) {
	c := p.channelFor(channels)
	offset := p.rd(p.P)
	p.P++
	noHang := p.OpD&0o40 != 0
	taken := c != nil && cond(c)

	if noHang {
		if c != nil {
			switch p.OpF {
			case 0o64: // SCF
				prev := c.Flag
				c.Flag = true
				taken = prev
			case 0o65: // CCF
				c.Flag = false
			case 0o66: // SFM
				prev := c.Flag
				c.Flag = true
				taken = prev
			case 0o67: // CFM
				c.Flag = false
			}
		}
		if taken {
			p.P = addOffset(p.P-1, offset)
		}
		return
	}

	if taken {
		p.P = addOffset(p.P-1, offset)
		return
	}
	p.P -= 2
}

// exchangeOpcode implements 26 EXN/MXN/MAN (§4.7). The opD&070 sub-field
// selects plain exchange (no monitor-mode change), monitor-exchange at the
// A-supplied address, or monitor-exchange at the target CPU's own MA.
func (p *PP) exchangeOpcode(cpus []CPU, features model.Feature) {
	cpuSel := int(p.OpD & 0o7)
	if cpuSel >= len(cpus) {
		return
	}
	target := cpus[cpuSel]

	monitorReq := 2 // EXN: no monitor-mode change.
	addr := p.A & 0x3ffff
	if !features.Has(model.HasNoCejMej) {
		switch p.OpD & 0o70 {
		case 0o10: // MXN
			monitorReq = target.ID()
		case 0o20: // MAN
			monitorReq = target.ID()
			addr = target.MAReg()
		}
	}

	ok := target.ExchangeJump(addr, monitorReq, int(p.ID))
	if !ok {
		// Reference behavior: rewind P so the same EXN/MXN/MAN
		// re-executes on the PP's next scheduler tick, retrying until
		// the CPU accepts (SPEC_FULL.md §1c).
		p.P--
	}
}

// memOpDirect/Indirect/Indexed implement LDD..SOD (load/add/sub/xor/
// store/replace-add/increment/decrement) against a resolved PP-memory
// address for the direct, indirect and indexed addressing groups
// (opcodes 30-37, 40-47, 50-57 respectively differ only in how addr was
// computed by the caller).
func (p *PP) memOp(addr uint16, kind uint8) {
	switch kind {
	case 0: // LDD - load
		p.A = uint32(p.rd(addr))
	case 1: // ADD - add
		p.A = (p.A + uint32(p.rd(addr))) & 0x3ffff
	case 2: // SBD - subtract
		p.A = (p.A - uint32(p.rd(addr))) & 0x3ffff
	case 3: // LMD - XOR
		p.A ^= uint32(p.rd(addr))
	case 4: // STD - store
		p.wr(addr, uint16(p.A))
	case 5: // RAD - replace add
		sum := (uint32(p.rd(addr)) + p.A) & 0xfff
		p.wr(addr, uint16(sum))
	case 6: // AOD - add one and store
		p.wr(addr, (p.rd(addr)+1)&0xfff)
	case 7: // SOD - subtract one and store
		p.wr(addr, (p.rd(addr)-1)&0xfff)
	}
}

func (p *PP) memOpDirect(cm *memory.CentralMemory, addr uint16)   { p.memOp(addr, p.OpF&0o7) }
func (p *PP) memOpIndirect(cm *memory.CentralMemory, addr uint16) { p.memOp(addr, p.OpF&0o7) }
func (p *PP) memOpIndexed(cm *memory.CentralMemory, addr uint16)  { p.memOp(addr, p.OpF&0o7) }

// beginMultiWord starts the CRM/CWM state machine (§4.7): take Q from the
// word after the opcode, save P+1 in mem[0], load a new P from the word
// after Q, transfer Q words, then restore P from mem[0].
func (p *PP) beginMultiWord(cm *memory.CentralMemory, channels []*channel.Channel, read bool) {
	p.Mem[0] = p.P + 1
	p.Q = p.rd(p.P)
	p.P = p.rd(p.P + 1)
	p.Busy = true
	p.step = 0
	p.stash = cmMultiWordOp{cm: cm, read: read}
}

type cmMultiWordOp struct {
	cm   *memory.CentralMemory
	read bool
	val  uint64 // accumulator for the 5-PP-word-per-CM-word packing.
}

// beginIO latches the IAN/IAM/OAN/OAM opcode and, for multi-word variants,
// the indirect word count/address; the channel timer drives subsequent
// ticks through resume (§4.7).
func (p *PP) beginIO(channels []*channel.Channel, input bool, multi bool) {
	c := p.channelFor(channels)
	noHang := p.OpD&0o40 != 0
	if c == nil || (noHang && !ioReady(c, input)) {
		if multi {
			p.P++ // Consume the operand word even when declining to hang.
		}
		return
	}
	p.Busy = true
	p.step = 0
	if multi {
		target := p.rd(p.P)
		p.P++
		p.stash = ioMultiWordOp{channel: c, input: input, addr: target}
	} else {
		p.stash = ioMultiWordOp{channel: c, input: input, single: true}
	}
}

func ioReady(c *channel.Channel, input bool) bool {
	if input {
		return c.Active && c.Full
	}
	return c.Active && !c.Full
}

type ioMultiWordOp struct {
	channel *channel.Channel
	input   bool
	addr    uint16
	single  bool
}

func (p *PP) resume(cm *memory.CentralMemory, channels []*channel.Channel, cpus []CPU, features model.Feature) {
	switch op := p.stash.(type) {
	case cmMultiWordOp:
		p.resumeMultiWord(op)
	case ioMultiWordOp:
		p.resumeIO(op)
	default:
		p.Busy = false
	}
}

// resumeMultiWord advances one CRM/CWM tick (§4.7): like CRD/CWD's
// single-shot form, a 60-bit CM word packs five 12-bit PP words, so the
// multi-word form paces that same packing across five busy ticks using the
// step counter, touching CM only on the first (read) or fifth (write) of
// each group of five.
func (p *PP) resumeMultiWord(op cmMultiWordOp) {
	if p.Q == 0 {
		p.P = p.Mem[0]
		p.Busy = false
		p.step = 0
		return
	}

	if op.read {
		if p.step == 0 {
			op.val = p.PpReadMem(op.cm, p.A)
		}
		shift := uint(48 - 12*p.step)
		p.wr(p.P, uint16(op.val>>shift)&0xfff)
	} else {
		op.val = ((op.val << 12) | uint64(p.rd(p.P))) & 0xfffffffffffffff
		if p.step == 4 {
			p.PpWriteMem(op.cm, p.A, op.val)
		}
	}

	p.step++
	if p.step == 5 {
		p.step = 0
		p.A = (p.A + 1) & 0x3ffff
	}
	p.P++
	p.Q--
	p.stash = op
}

func (p *PP) resumeIO(op ioMultiWordOp) {
	c := op.channel
	if !c.Active {
		p.finishIO()
		return
	}
	if op.input {
		if !c.Full {
			return
		}
		val := c.In()
		if op.single {
			p.wr(p.P, val)
		} else {
			p.wr(op.addr, val)
			op.addr++
			p.stash = op
		}
		c.SetEmpty()
	} else {
		if c.Full {
			return
		}
		var val uint16
		if op.single {
			val = p.rd(p.P)
		} else {
			val = p.rd(op.addr)
			op.addr++
			p.stash = op
		}
		c.SetFull(val)
	}
	p.A = (p.A - 1) & 0x3ffff
	if op.single || p.A == 0 {
		if c.DiscAfterInput {
			c.ForceDisconnect()
		}
		p.finishIO()
	}
}

func (p *PP) finishIO() {
	p.Busy = false
	p.stash = nil
}
