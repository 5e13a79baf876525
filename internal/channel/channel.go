/*
 * cyber6000 - I/O channel full/empty/active handshake.
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

// Package channel implements the 12-bit channel data latch and its
// active/full/flag/inputPending handshake (§4.8), and the device-chain
// function-code protocol devices use to become a channel's selected
// ioDevice (§6.1). The handshake itself is CDC's, not a selector/multiplexer
// channel's: ground truth is original_source/CppCyber/channel.cpp.
package channel

// FuncStatus is returned by a device's function-code handler.
type FuncStatus int

const (
	Declined FuncStatus = iota
	Accepted
	Processed
)

// Device is the callback surface a channel-attached device implements
// (§6.1). PCI is optional: a device that owns the channel's full/empty
// transitions directly (disks, DDP) implements it; most devices leave it
// nil and rely on the Channel's default In/Out/Full/Empty bookkeeping.
type Device interface {
	// Func offers a function code to the device. Declined lets the
	// channel try the next device on the chain.
	Func(code uint16) FuncStatus
	// Activate is called when a PP executes ACN against this channel.
	Activate()
	// Disconnect is called when a PP executes DCN, or on a forced
	// disconnect from delayDisconnect reaching zero.
	Disconnect()
	// IO is called once per scheduler tick while the channel is
	// active and this device is the selected ioDevice; it moves one
	// word to/from the channel's data latch.
	IO()
	// Name identifies the device for logs and the operator console.
	Name() string
}

// PCI is implemented by devices that manage the full/empty transition
// themselves instead of going through Channel.SetFull/SetEmpty.
type PCI interface {
	In() uint16
	Out(data uint16)
	Full() bool
	Empty() bool
	Flags() uint16
}

// Channel is one 12-bit I/O channel: a data latch, the four handshake
// booleans, the two delay counters, and the chain of attached devices.
type Channel struct {
	ID uint8

	Data uint16 // 12-bit latch.

	Active         bool
	Full           bool
	Flag           bool
	InputPending   bool
	DiscAfterInput bool
	Hardwired      bool // Clock/interlock/S-C channels: cannot be deactivated.

	DelayStatus     uint8
	DelayDisconnect uint8

	devices  []Device
	ioDevice Device
}

// New returns an inactive, empty channel.
func New(id uint8) *Channel {
	return &Channel{ID: id}
}

// Attach chains a device onto the channel in the order given; FAN/FNC offer
// function codes to devices in this order.
func (c *Channel) Attach(d Device) {
	c.devices = append(c.devices, d)
}

// IODevice returns the currently selected device, or nil.
func (c *Channel) IODevice() Device {
	return c.ioDevice
}

// Function offers code to every attached device in chain order (§6.1): the
// first Accepted response selects that device as ioDevice; a Processed
// response ends the chain without changing ioDevice. If every device
// declines, Function returns Declined and changes nothing: ioDevice and the
// channel's Active and Full flags keep their previous values.
func (c *Channel) Function(code uint16) FuncStatus {
	for _, d := range c.devices {
		switch d.Func(code) {
		case Accepted:
			c.ioDevice = d
			return Accepted
		case Processed:
			return Processed
		case Declined:
			continue
		}
	}
	return Declined
}

// SelectDevice forces d to be the channel's ioDevice without going through
// the function-code chain, for power-up wiring such as the deadstart panel
// that channel 0 is hardwired to before any program can issue FAN/FNC.
func (c *Channel) SelectDevice(d Device) {
	c.devices = append([]Device{d}, c.devices...)
	c.ioDevice = d
}

// Activate marks the channel active and, if a device is selected,
// activates it.
func (c *Channel) Activate() {
	c.Active = true
	if c.ioDevice != nil {
		c.ioDevice.Activate()
	}
}

// Disconnect deactivates the channel (ACN's counterpart, DCN). Hardwired
// channels (clock, interlock, status/control) ignore this per §4.8.
func (c *Channel) Disconnect() {
	if c.Hardwired {
		return
	}
	if c.ioDevice != nil {
		c.ioDevice.Disconnect()
	}
	c.Active = false
	c.Full = false
	c.ioDevice = nil
	c.DiscAfterInput = false
}

// ForceDisconnect deactivates the channel even if Hardwired, for use by a
// device's own discAfterInput completion rather than an explicit DCN.
func (c *Channel) ForceDisconnect() {
	if c.ioDevice != nil {
		c.ioDevice.Disconnect()
	}
	c.Active = false
	c.Full = false
	c.ioDevice = nil
	c.DiscAfterInput = false
}

// SetFull latches data and marks the channel full, unless delayStatus is
// masking transitions (§4.8: "when delayStatus>0 full/empty transitions
// are masked").
func (c *Channel) SetFull(data uint16) {
	if c.DelayStatus > 0 {
		return
	}
	c.Data = data & 0xfff
	c.Full = true
}

// SetEmpty clears the full latch, subject to the same delayStatus masking.
func (c *Channel) SetEmpty() {
	if c.DelayStatus > 0 {
		return
	}
	c.Full = false
}

// In reads the channel's data latch, preferring a PCI device's In() when
// the selected device implements it.
func (c *Channel) In() uint16 {
	if pci, ok := c.ioDevice.(PCI); ok {
		return pci.In()
	}
	return c.Data
}

// Out writes data to the channel's data latch, preferring a PCI device's
// Out() when the selected device implements it.
func (c *Channel) Out(data uint16) {
	if pci, ok := c.ioDevice.(PCI); ok {
		pci.Out(data)
		return
	}
	c.Data = data & 0xfff
}

// Step advances per-tick delay counters (§4.8 channelStep): it decrements
// delayDisconnect and delayStatus, and forces the channel inactive when
// delayDisconnect reaches zero.
func (c *Channel) Step() {
	if c.DelayStatus > 0 {
		c.DelayStatus--
	}
	if c.DelayDisconnect > 0 {
		c.DelayDisconnect--
		if c.DelayDisconnect == 0 {
			c.Active = false
			c.DiscAfterInput = false
		}
	}
	if c.Active && c.ioDevice != nil {
		c.ioDevice.IO()
	}
}
