/*
 * cyber6000 - Configuration file parser.
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

// Package configparser reads the installation's flat key=value configuration
// file (SPEC_FULL.md §1a) into an installation.Config. It keeps the classic
// bufio line-reader-plus-hand-rolled-tokenizer style for this kind of file
// but drops the per-device model registry: a CDC installation's equipment is
// declared by simple scalar fields, not S/370's per-device attach grammar.
package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/dtcyber-go/cyber6000/internal/equipment"
	"github.com/dtcyber-go/cyber6000/internal/installation"
	"github.com/dtcyber-go/cyber6000/internal/mainframe"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <key> '=' <value>
 * A "mainframe = <id>" line (numeric id) starts a new mainframe section; fields after it
 * apply to that mainframe until the next "mainframe" line or EOF.
 *
 * Installation-wide keys: ecswords, mainframes (expected section count,
 * cross-checked once the file is fully read), persistdir.
 * Per-mainframe keys: model, cmwords, ppcount, channels, cpus,
 * clockincrement, cpumhz, deadstart (comma-separated octal words),
 * equipment (channel,kind,path; repeatable).
 */

// LoadConfigFile reads name and returns the installation.Config it
// describes.
func LoadConfigFile(name string) (installation.Config, error) {
	var cfg installation.Config

	file, err := os.Open(name)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	lineNumber := 0
	var cur *mainframe.Config
	expectedMainframes := -1

	for {
		raw, err := reader.ReadString('\n')
		lineNumber++
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return cfg, err
		}

		line := stripComment(raw)
		key, value, ok := parseKeyValue(line)
		if !ok {
			if err != nil && errors.Is(err, io.EOF) {
				break
			}
			continue
		}

		if key == "mainframes" {
			n, numErr := strconv.Atoi(value)
			if numErr != nil {
				return cfg, fmt.Errorf("configparser: line %d: mainframes %q: %w", lineNumber, value, numErr)
			}
			expectedMainframes = n
			continue
		}

		if key == "mainframe" {
			if cur != nil {
				cfg.Mainframes = append(cfg.Mainframes, *cur)
			}
			id, numErr := strconv.Atoi(value)
			if numErr != nil {
				return cfg, fmt.Errorf("configparser: line %d: mainframe id %q: %w", lineNumber, value, numErr)
			}
			cur = &mainframe.Config{ID: id, CPUCount: 1}
			continue
		}

		if cur == nil && isMainframeKey(key) {
			cur = &mainframe.Config{ID: 0, CPUCount: 1}
		}

		if err := applyKey(&cfg, cur, key, value); err != nil {
			return cfg, fmt.Errorf("configparser: line %d: %w", lineNumber, err)
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}
	if cur != nil {
		cfg.Mainframes = append(cfg.Mainframes, *cur)
	}
	if len(cfg.Mainframes) == 0 {
		return cfg, errors.New("configparser: no mainframe sections found")
	}
	if expectedMainframes >= 0 && expectedMainframes != len(cfg.Mainframes) {
		return cfg, fmt.Errorf("configparser: mainframes=%d but %d mainframe section(s) found", expectedMainframes, len(cfg.Mainframes))
	}
	return cfg, nil
}

func isMainframeKey(key string) bool {
	switch key {
	case "model", "cmwords", "ppcount", "channels", "cpus",
		"clockincrement", "cpumhz", "deadstart", "equipment":
		return true
	}
	return false
}

func applyKey(cfg *installation.Config, cur *mainframe.Config, key, value string) error {
	switch key {
	case "ecswords":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("ecswords: %w", err)
		}
		cfg.ECSWords = uint32(n)
	case "model":
		t, ok := model.Names[strings.ToUpper(value)]
		if !ok {
			return fmt.Errorf("model: unknown model %q", value)
		}
		cur.Model = t
	case "cmwords":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("cmwords: %w", err)
		}
		cur.CMWords = uint32(n)
	case "ppcount":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ppcount: %w", err)
		}
		cur.PPCount = n
	case "channels":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("channels: %w", err)
		}
		cur.Channels = n
	case "cpus":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cpus: %w", err)
		}
		cur.CPUCount = n
	case "clockincrement":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("clockincrement: %w", err)
		}
		cur.ClockIncrement = n
	case "cpumhz":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("cpumhz: %w", err)
		}
		cur.CPUMHz = uint32(n)
	case "persistdir":
		cfg.PersistDir = value
	case "deadstart":
		words, err := parseWordList(value)
		if err != nil {
			return fmt.Errorf("deadstart: %w", err)
		}
		cur.DeadstartProgram = words
	case "equipment":
		spec, err := equipment.ParseSpec(value)
		if err != nil {
			return fmt.Errorf("equipment: %w", err)
		}
		cur.Equipment = append(cur.Equipment, spec)
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}

// parseWordList parses a comma-separated list of octal 12-bit words, for
// the "deadstart" key's inline bootstrap program override.
func parseWordList(value string) ([]uint16, error) {
	fields := strings.Split(value, ",")
	words := make([]uint16, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseUint(f, 8, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", f, err)
		}
		words = append(words, uint16(n)&0xfff)
	}
	return words, nil
}

// stripComment removes everything from the first '#' onward; quotes are
// not recognized, so a '#' inside a value also starts a comment.
func stripComment(line string) string {
	for i, r := range line {
		if r == '#' {
			return line[:i]
		}
	}
	return line
}

// parseKeyValue splits "key = value" (whitespace around '=' optional),
// returning ok=false for blank lines.
func parseKeyValue(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return "", "", false
		}
	}
	return key, value, true
}
