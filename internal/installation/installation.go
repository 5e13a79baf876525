/*
 * cyber6000 - Installation: ECS plus one or two mainframes.
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

// Package installation owns the installation-wide Extended/ECS memory and
// the one or two mainframes that share it (§3), and implements the
// deadstart-panel pseudo-device boot sequence supplemented from
// original_source/CppCyber (see SPEC_FULL.md §1c).
package installation

import (
	"fmt"
	"log/slog"

	"github.com/dtcyber-go/cyber6000/internal/channel"
	"github.com/dtcyber-go/cyber6000/internal/mainframe"
	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/persist"
)

// Config describes an installation: its shared ECS and each mainframe's
// settings, as parsed from the configuration file (SPEC_FULL.md §1a). A
// non-empty PersistDir enables the CM/ECS snapshot load-on-start,
// save-on-stop cycle described in §6.3.
type Config struct {
	ECSWords   uint32
	Mainframes []mainframe.Config
	PersistDir string
}

// Installation is one or two mainframes sharing a single ECS store.
type Installation struct {
	ecs        *memory.ExtendedMemory
	Mainframes []*mainframe.Mainframe
	persistDir string
}

// New builds an installation from cfg, restoring CM/ECS content from
// PersistDir's snapshot files when one is configured (§6.3).
func New(cfg Config) *Installation {
	ecs := memory.NewExtendedMemory(cfg.ECSWords)
	inst := &Installation{ecs: ecs, persistDir: cfg.PersistDir}

	if cfg.PersistDir != "" {
		if words, err := persist.LoadOrCreateWords64(persist.ECSPath(cfg.PersistDir), cfg.ECSWords); err != nil {
			slog.Error("failed to load ECS snapshot", "error", err)
		} else {
			copy(ecs.Raw(), words)
		}
	}

	for _, mfCfg := range cfg.Mainframes {
		mf := mainframe.New(mfCfg, ecs)
		if cfg.PersistDir != "" {
			path := persist.CMPath(cfg.PersistDir, mf.ID())
			if words, err := persist.LoadOrCreateWords64(path, mfCfg.CMWords); err != nil {
				slog.Error("failed to load CM snapshot", "mainframe", mf.ID(), "error", err)
			} else {
				copy(mf.CM.Raw(), words)
			}
		}
		inst.Mainframes = append(inst.Mainframes, mf)
	}
	return inst
}

// savePersistence writes every mainframe's CM and the shared ECS to
// PersistDir, if one is configured (§6.3). Called from Stop so a restart
// picks up where the installation left off.
func (inst *Installation) savePersistence() {
	if inst.persistDir == "" {
		return
	}
	if err := persist.SaveWords64(persist.ECSPath(inst.persistDir), inst.ecs.Raw()); err != nil {
		slog.Error("failed to save ECS snapshot", "error", err)
	}
	for _, mf := range inst.Mainframes {
		path := persist.CMPath(inst.persistDir, mf.ID())
		if err := persist.SaveWords64(path, mf.CM.Raw()); err != nil {
			slog.Error("failed to save CM snapshot", "mainframe", mf.ID(), "error", err)
		}
	}
}

// ECS exposes the shared extended memory store.
func (inst *Installation) ECS() *memory.ExtendedMemory { return inst.ecs }

// deadstartPanel is the pseudo-device that feeds the bootstrap loader's
// fixed word sequence to channel 0 on deadstart (SPEC_FULL.md §1c): it
// declines every function code and yields one word per IO() call from a
// fixed program, then deactivates the channel once exhausted.
type deadstartPanel struct {
	program []uint16
	pos     int
	ch      *channel.Channel
}

func newDeadstartPanel(program []uint16, ch *channel.Channel) *deadstartPanel {
	return &deadstartPanel{program: program, ch: ch}
}

func (d *deadstartPanel) Func(code uint16) channel.FuncStatus { return channel.Declined }
func (d *deadstartPanel) Activate()                           { d.pos = 0 }
func (d *deadstartPanel) Disconnect()                         {}
func (d *deadstartPanel) Name() string                        { return "deadstart-panel" }

func (d *deadstartPanel) IO() {
	if d.pos >= len(d.program) {
		d.ch.ForceDisconnect()
		return
	}
	d.ch.SetFull(d.program[d.pos])
	d.pos++
}

// defaultDeadstartProgram is a minimal bootstrap: enough PP0 instructions
// to read the rest of the deadstart deck from the system device and jump
// to it, matching the shape (not the exact bit pattern) of a real
// installation's deadstart panel switches.
var defaultDeadstartProgram = []uint16{
	0o7000, // IAN from channel 0.
	0o0000, // PSN.
	0o0300, // UJN.
	0o0000,
}

// Boot implements §4.9's Deadstart(mainframeId): it attaches a fresh
// deadstart panel to the mainframe's channel 0, then primes the PP barrel
// and CPU set.
func (inst *Installation) Boot(mainframeID int) error {
	mf := inst.findMainframe(mainframeID)
	if mf == nil {
		return fmt.Errorf("installation: no mainframe with id %d", mainframeID)
	}
	if len(mf.Channels) == 0 {
		return fmt.Errorf("installation: mainframe %d has no channels to deadstart from", mainframeID)
	}
	program := mf.DeadstartProgram()
	if len(program) == 0 {
		program = defaultDeadstartProgram
	}
	ch := mf.Channels[0]
	panel := newDeadstartPanel(program, ch)
	ch.SelectDevice(panel)
	mf.Deadstart()
	return nil
}

func (inst *Installation) findMainframe(id int) *mainframe.Mainframe {
	for _, mf := range inst.Mainframes {
		if mf.ID() == id {
			return mf
		}
	}
	return nil
}

// Start runs every mainframe's scheduler loop.
func (inst *Installation) Start() {
	for _, mf := range inst.Mainframes {
		mf.Run()
	}
}

// Stop halts every mainframe's scheduler loop and saves the persistence
// snapshot, if configured (§6.3).
func (inst *Installation) Stop() {
	for _, mf := range inst.Mainframes {
		mf.Stop()
	}
	inst.savePersistence()
}
