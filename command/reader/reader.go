/*
 * cyber6000 - Operator console.
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

// Package reader implements the operator console (§6.5): a liner-backed
// prompt offering boot/shutdown/show verbs against an installation.
package reader

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/dtcyber-go/cyber6000/internal/installation"
	"github.com/dtcyber-go/cyber6000/util/octal"
)

var verbs = []string{"boot", "shutdown", "show", "help", "quit", "exit"}

func completeCmd(line string) []string {
	var out []string
	for _, v := range verbs {
		if strings.HasPrefix(v, line) {
			out = append(out, v)
		}
	}
	return out
}

// Console runs the operator console loop against inst until the operator
// quits or aborts with Ctrl-C, dispatching CDC verbs directly rather than
// through a separate parser package.
func Console(inst *installation.Installation) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCmd)

	for {
		command, err := line.Prompt("cyber6000> ")
		if err == nil {
			line.AppendHistory(command)
			quit, err := processCommand(command, inst)
			if err != nil {
				fmt.Println("Error: " + err.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		slog.Error("error reading line: " + err.Error())
	}
}

// processCommand dispatches one console line (§6.5's verb set: boot,
// shutdown, show, help, quit). It returns true when the console should
// exit.
func processCommand(line string, inst *installation.Installation) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "quit", "exit":
		return true, nil
	case "help":
		printHelp()
		return false, nil
	case "boot":
		return false, bootCommand(inst, args)
	case "shutdown":
		inst.Stop()
		return false, nil
	case "show":
		return false, showCommand(inst, args)
	default:
		return false, fmt.Errorf("unknown command %q; type 'help' for the verb list", verb)
	}
}

func bootCommand(inst *installation.Installation, args []string) error {
	id := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("boot: invalid mainframe id %q", args[0])
		}
		id = v
	}
	if err := inst.Boot(id); err != nil {
		return err
	}
	inst.Start()
	return nil
}

func showCommand(inst *installation.Installation, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("show: expected a subject (try 'show ecs-flags')")
	}
	switch strings.ToLower(args[0]) {
	case "ecs-flags":
		fmt.Printf("ECS flag register: %06o\n", inst.ECS().FlagRegister())
	case "mainframes":
		for _, mf := range inst.Mainframes {
			fmt.Printf("mainframe %d: %d PPs, %d channels, %d CPUs\n",
				mf.ID(), len(mf.PPs), len(mf.Channels), len(mf.CPUs))
		}
	case "cpu":
		return showCPU(inst, args[1:])
	default:
		return fmt.Errorf("show: unknown subject %q", args[0])
	}
	return nil
}

// showCPU prints the X, A and B register files of one CPU, addressed as
// "show cpu <mainframe-id> <cpu-id>" (both default to 0).
func showCPU(inst *installation.Installation, args []string) error {
	mainframeID, cpuID := 0, 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("show cpu: invalid mainframe id %q", args[0])
		}
		mainframeID = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("show cpu: invalid cpu id %q", args[1])
		}
		cpuID = v
	}

	for _, mf := range inst.Mainframes {
		if mf.ID() != mainframeID {
			continue
		}
		if cpuID < 0 || cpuID >= len(mf.CPUs) {
			return fmt.Errorf("show cpu: mainframe %d has no cpu %d", mainframeID, cpuID)
		}
		c := mf.CPUs[cpuID]
		X, A, B := c.Registers()

		var b strings.Builder
		fmt.Fprintf(&b, "P ")
		octal.FormatWord18(&b, c.PReg())
		fmt.Println(b.String())

		for i := range X {
			var rb strings.Builder
			fmt.Fprintf(&rb, "X%d ", i)
			octal.FormatWord60(&rb, X[i])
			fmt.Fprintf(&rb, "  A%d ", i)
			octal.FormatWord18(&rb, A[i])
			fmt.Fprintf(&rb, "  B%d ", i)
			octal.FormatWord18(&rb, B[i])
			fmt.Println(rb.String())
		}
		return nil
	}
	return fmt.Errorf("show cpu: no mainframe with id %d", mainframeID)
}

func printHelp() {
	fmt.Println("commands: boot [mainframe-id], shutdown, show ecs-flags, show mainframes, show cpu [mainframe-id] [cpu-id], help, quit")
}
