/*
 * cyber6000 - Configured peripheral equipment.
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

// Package equipment attaches the peripherals a configuration file's
// "equipment" key names (SPEC_FULL.md §6.4) to a mainframe's channels,
// through the same channel.Device function-code protocol the deadstart
// panel in internal/installation already uses.
package equipment

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dtcyber-go/cyber6000/internal/channel"
)

// Spec describes one "equipment = <channel>,<kind>,<path>" configuration
// line: which channel the device attaches to, what kind it is, and the
// host file backing its data (a punch deck for a reader, a spool file for
// a printer/punch).
type Spec struct {
	Channel int
	Kind    string
	Path    string
}

// ParseSpec parses one equipment value's comma-separated fields.
func ParseSpec(value string) (Spec, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 3 {
		return Spec{}, fmt.Errorf("equipment: expected \"channel,kind,path\", got %q", value)
	}
	ch, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Spec{}, fmt.Errorf("equipment: invalid channel %q: %w", fields[0], err)
	}
	return Spec{Channel: ch, Kind: strings.ToLower(strings.TrimSpace(fields[1])), Path: strings.TrimSpace(fields[2])}, nil
}

// Attach builds the device spec names and attaches it to ch, in function-
// code chain order behind whatever is already attached.
func Attach(ch *channel.Channel, spec Spec) error {
	switch spec.Kind {
	case "reader":
		words, err := loadDeck(spec.Path)
		if err != nil {
			return err
		}
		dev := NewCardReader(spec.Path, words)
		dev.BindChannel(ch)
		ch.Attach(dev)
	case "printer", "punch":
		f, err := os.OpenFile(spec.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		dev := NewLineWriter(spec.Path, spec.Kind, f)
		dev.BindChannel(ch)
		ch.Attach(dev)
	default:
		return fmt.Errorf("equipment: unknown device kind %q", spec.Kind)
	}
	return nil
}

// loadDeck reads a reader's backing file as whitespace-separated octal
// 12-bit words, one card image per line: a plain-text deck convention
// rather than a punch-card binary format.
func loadDeck(path string) ([]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []uint16
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			v, err := strconv.ParseUint(tok, 8, 16)
			if err != nil {
				return nil, fmt.Errorf("equipment: reader %q: invalid word %q: %w", path, tok, err)
			}
			words = append(words, uint16(v)&0xfff)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// CardReader is a read-only input device whose function code 0o7000 (IAN's
// code family — any function not explicitly handled here is declined)
// selects it; it then feeds its preloaded deck one word per IO() tick and
// forces a disconnect once exhausted, the same shape as installation's
// deadstart panel.
type CardReader struct {
	name  string
	words []uint16
	pos   int
	ch    *channel.Channel
}

// NewCardReader returns a CardReader preloaded with words, not yet bound to
// a channel (Attach binds it to the channel it attaches it to, through
// BindChannel).
func NewCardReader(path string, words []uint16) *CardReader {
	return &CardReader{name: path, words: words}
}

func (r *CardReader) Func(code uint16) channel.FuncStatus {
	if code&0o7000 == 0o7000 {
		return channel.Accepted
	}
	return channel.Declined
}
func (r *CardReader) Activate()   { r.pos = 0 }
func (r *CardReader) Disconnect() {}
func (r *CardReader) Name() string {
	return fmt.Sprintf("reader(%s)", r.name)
}

func (r *CardReader) IO() {
	if r.ch == nil {
		return
	}
	if r.pos >= len(r.words) {
		r.ch.ForceDisconnect()
		return
	}
	r.ch.SetFull(r.words[r.pos])
	r.pos++
}

// BindChannel records the channel this device was attached to, since the
// channel.Device interface's IO() takes no arguments; Attach calls this
// right after channel.Attach.
func (r *CardReader) BindChannel(ch *channel.Channel) { r.ch = ch }

// LineWriter is an output device (printer or punch) that appends every
// word the channel hands it to a spool file, one octal word per line.
type LineWriter struct {
	name string
	kind string
	w    *bufio.Writer
	f    *os.File
	ch   *channel.Channel
}

// NewLineWriter returns a LineWriter appending to f.
func NewLineWriter(path, kind string, f *os.File) *LineWriter {
	return &LineWriter{name: path, kind: kind, w: bufio.NewWriter(f), f: f}
}

func (w *LineWriter) Func(code uint16) channel.FuncStatus {
	if code&0o7000 == 0o7000 {
		return channel.Accepted
	}
	return channel.Declined
}
func (w *LineWriter) Activate()   {}
func (w *LineWriter) Disconnect() { w.w.Flush() }
func (w *LineWriter) Name() string {
	return fmt.Sprintf("%s(%s)", w.kind, w.name)
}

func (w *LineWriter) IO() {
	if w.ch == nil || !w.ch.Full {
		return
	}
	fmt.Fprintf(w.w, "%04o\n", w.ch.Data)
	w.ch.SetEmpty()
}

// BindChannel records the channel this device writes from, mirroring
// CardReader.BindChannel.
func (w *LineWriter) BindChannel(ch *channel.Channel) { w.ch = ch }

// Close flushes and closes the writer's backing file.
func (w *LineWriter) Close() error {
	w.w.Flush()
	return w.f.Close()
}
