/*
 * cyber6000 - Mainframe: CM, channels, PP barrel and CPU set, scheduled.
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

// Package mainframe owns one mainframe's Central Memory, channel set, PP
// barrel and CPU set, and drives them with a round-robin scheduler loop on
// its own goroutine, for the CDC barrel-plus-one-or-two-CPU model (§5).
package mainframe

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dtcyber-go/cyber6000/internal/channel"
	"github.com/dtcyber-go/cyber6000/internal/cpu"
	"github.com/dtcyber-go/cyber6000/internal/equipment"
	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
	"github.com/dtcyber-go/cyber6000/internal/pp"
)

// Config is the subset of installation configuration that shapes one
// mainframe: word counts, PP/channel/CPU counts, the selected model, its
// attached equipment and clock rate, and an optional deadstart program
// override (SPEC_FULL.md §1a, §6.4).
type Config struct {
	ID       int
	Model    model.Type
	CMWords  uint32
	PPCount  int
	Channels int // 0 selects model.DefaultChannelCount(PPCount).
	CPUCount int // 1 or 2.

	Equipment []equipment.Spec

	// ClockIncrement, if nonzero, is added to each CPU's microsecond clock
	// once per scheduler tick; CPUMHz is an alternate, coarser way to
	// specify the same rate when a configuration gives a clock speed
	// instead of a raw per-tick increment.
	ClockIncrement uint64
	CPUMHz         uint32

	// DeadstartProgram, if set, overrides the built-in bootstrap word
	// sequence Installation.Boot feeds to channel 0.
	DeadstartProgram []uint16
}

// cpuAdapter satisfies pp.CPU by delegating to *cpu.CPU; it exists because
// pp's interface predates cpu's concrete type and this keeps the two
// packages decoupled (pp never imports cpu).
type cpuAdapter struct{ c *cpu.CPU }

func (a cpuAdapter) ID() int         { return a.c.ID() }
func (a cpuAdapter) PReg() uint32    { return a.c.PReg() }
func (a cpuAdapter) MAReg() uint32   { return a.c.MAReg() }
func (a cpuAdapter) ExchangeJump(addr uint32, monitorReq int, source int) bool {
	return a.c.ExchangeJump(addr, monitorReq, source)
}

// Mainframe is one CDC mainframe: its CM, its PP barrel, its channels, and
// one or two CPUs sharing a monitor-mode token (§3, §5).
type Mainframe struct {
	id       int
	features model.Feature

	CM       *memory.CentralMemory
	Channels []*channel.Channel
	PPs      []*pp.PP
	CPUs     []*cpu.CPU
	ppCPUs   []pp.CPU

	ecs *memory.ExtendedMemory

	deadstartProgram []uint16

	wg      sync.WaitGroup
	done    chan struct{}
	running bool
	mu      sync.Mutex
}

// New builds a mainframe from cfg, wired against the installation-wide ECS.
func New(cfg Config, ecs *memory.ExtendedMemory) *Mainframe {
	features := model.FeaturesFor(cfg.Model)
	if model.Is865(cfg.Model) {
		features |= pp.Is865 | cpu.Is865
	}

	chanCount := cfg.Channels
	if chanCount == 0 {
		chanCount = model.DefaultChannelCount(cfg.PPCount)
	}

	m := &Mainframe{
		id:       cfg.ID,
		features: features,
		CM:       memory.NewCentralMemory(cfg.CMWords),
		ecs:      ecs,
		done:     make(chan struct{}),
	}

	m.Channels = make([]*channel.Channel, chanCount)
	for i := range m.Channels {
		m.Channels[i] = channel.New(uint8(i))
	}

	m.PPs = make([]*pp.PP, cfg.PPCount)
	for i := range m.PPs {
		m.PPs[i] = pp.New(uint8(i))
	}

	token := cpu.NewMonitorToken()
	cpuCount := cfg.CPUCount
	if cpuCount < 1 {
		cpuCount = 1
	}
	m.CPUs = make([]*cpu.CPU, cpuCount)
	m.ppCPUs = make([]pp.CPU, cpuCount)
	increment := cfg.ClockIncrement
	if increment == 0 {
		increment = uint64(cfg.CPUMHz)
	}
	for i := range m.CPUs {
		m.CPUs[i] = cpu.New(i, features, m.CM, ecs, token)
		m.CPUs[i].ClockIncrement = increment
		m.ppCPUs[i] = cpuAdapter{m.CPUs[i]}
	}

	for _, spec := range cfg.Equipment {
		if spec.Channel < 0 || spec.Channel >= len(m.Channels) {
			slog.Warn("equipment references unknown channel", "mainframe", cfg.ID, "channel", spec.Channel)
			continue
		}
		if err := equipment.Attach(m.Channels[spec.Channel], spec); err != nil {
			slog.Error("failed to attach equipment", "mainframe", cfg.ID, "error", err)
		}
	}

	m.deadstartProgram = cfg.DeadstartProgram

	return m
}

// ID returns the mainframe's configured identifier, used to name its
// persistence files (§6.3).
func (m *Mainframe) ID() int { return m.id }

// ECS exposes the installation-wide extended memory this mainframe shares,
// for the operator console's diagnostic commands.
func (m *Mainframe) ECS() *memory.ExtendedMemory { return m.ecs }

// DeadstartProgram returns the configured deadstart override, or nil if the
// configuration left it unset (installation.Boot then uses its own
// built-in bootstrap sequence).
func (m *Mainframe) DeadstartProgram() []uint16 { return m.deadstartProgram }

// Deadstart primes every PP and CPU to the power-on state, offers function
// code 0 to channel 0's device chain (a device that accepts it becomes
// ioDevice; otherwise the device already selected, such as the panel
// installation.Boot installs with SelectDevice, stays selected) and then
// activates channel 0, per §4.9.
func (m *Mainframe) Deadstart() {
	for _, p := range m.PPs {
		*p = *pp.New(p.ID)
		p.Mem[0] = 0
		p.OpF = 0o71
		p.A = 0o10000
		p.Busy = true
	}
	for _, c := range m.CPUs {
		c.Stopped = true
	}
	if len(m.Channels) > 0 {
		ch := m.Channels[0]
		ch.Function(0)
		ch.Activate()
	}
	if len(m.CPUs) > 0 {
		m.CPUs[0].Stopped = false
	}
}

// tick advances every PP by one instruction, CPU 0 by one instruction word,
// and every channel's delay counters, in that order (§5's round-robin
// scheduler). Any CPU beyond CPU 0 is driven by its own cpuLoop goroutine
// instead, since the reference machine's second CPU runs independently,
// synchronized with CPU 0 only through the shared monitor-mode token.
// Returns whether any unit did useful work, for the idle-poll backoff in Run.
func (m *Mainframe) tick() bool {
	active := false
	for _, p := range m.PPs {
		p.Step(m.CM, m.Channels, m.ppCPUs, m.features)
		active = true
	}
	if len(m.CPUs) > 0 && m.CPUs[0].Step() {
		active = true
	}
	for _, ch := range m.Channels {
		ch.Step()
	}
	return active
}

// Run drives the mainframe's scheduler loop until Stop is called, with a
// select-on-done-channel-with-default-case tick loop. If a second CPU is
// configured, it runs concurrently on its own goroutine sharing CM and the
// monitor token, per §5.
func (m *Mainframe) Run() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.schedulerLoop()

	for _, c := range m.CPUs[1:] {
		m.wg.Add(1)
		go m.cpuLoop(c)
	}
}

// schedulerLoop is the goroutine that steps PPs, CPU 0, and the channel set.
func (m *Mainframe) schedulerLoop() {
	defer m.wg.Done()
	idle := 0
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if m.tick() {
			idle = 0
		} else {
			idle++
			if idle > 64 {
				time.Sleep(time.Microsecond)
			}
		}
	}
}

// cpuLoop drives one non-zero-indexed CPU on its own goroutine (started by
// Run when CPUCount==2), synchronizing with schedulerLoop's CPU 0 only
// through the shared monitor-mode token inside cpu.CPU.ExchangeJump (§5).
func (m *Mainframe) cpuLoop(c *cpu.CPU) {
	defer m.wg.Done()
	idle := 0
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if c.Step() {
			idle = 0
		} else {
			idle++
			if idle > 64 {
				time.Sleep(time.Microsecond)
			}
		}
	}
}

// Stop halts the scheduler loop and waits (bounded) for it to exit.
func (m *Mainframe) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.done)
	waitDone := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		slog.Warn("mainframe scheduler did not stop within timeout", "mainframe", m.id)
	}
}
