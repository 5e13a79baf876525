/*
 * cyber6000 - Model and feature-set table.
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

// Package model selects the feature bitset a mainframe's CPUs and PPs
// consult at decode and execution time, keyed by the configured model name.
package model

// Feature is a bit in the model feature set, consulted at decode and
// execution time. It is fixed once the model is selected at init.
type Feature uint32

const (
	HasInterlockReg Feature = 1 << iota
	HasStatusAndControlReg
	HasMaintenanceChannel
	HasTwoPortMux
	HasChannelFlag
	HasErrorFlag
	HasRelocationRegShort
	HasRelocationRegLong
	HasMicrosecondClock
	HasInstructionStack
	HasIStackPrefetch
	HasCMU
	HasFullRTC
	HasNoCmWrap
	HasNoCejMej
	Has175Float

	IsSeries6x00
	IsSeries70
	IsSeries170
	IsSeries800
)

// HasRelocationReg is the combination of the short and long relocation
// register variants; a model carries at most one of the two.
const HasRelocationReg = HasRelocationRegShort | HasRelocationRegLong

// Has reports whether f is set in the feature bitset.
func (fs Feature) Has(f Feature) bool {
	return fs&f != 0
}

// Type names a supported mainframe model; the core refuses to emulate
// anything not enumerated here.
type Type int

const (
	Model6400 Type = iota
	ModelCyber73
	ModelCyber173
	ModelCyber175
	ModelCyber840A
	Model865
)

// Names maps the configuration file's model keyword to a Type.
var Names = map[string]Type{
	"6400":   Model6400,
	"CYBER73": ModelCyber73,
	"73":      ModelCyber73,
	"CYBER173": ModelCyber173,
	"173":      ModelCyber173,
	"CYBER175": ModelCyber175,
	"175":      ModelCyber175,
	"840A":     ModelCyber840A,
	"865":      Model865,
}

// features is built once, indexed by Type, reflecting the reference
// implementation's model table (MMainFrame.cpp / types.h ModelFeatures).
var features = map[Type]Feature{
	Model6400: IsSeries6x00 | HasNoCejMej,
	ModelCyber73: IsSeries70 | HasChannelFlag | HasErrorFlag |
		HasRelocationRegShort | HasInterlockReg,
	ModelCyber173: IsSeries170 | HasChannelFlag | HasErrorFlag |
		HasRelocationRegLong | HasInterlockReg | HasStatusAndControlReg |
		HasInstructionStack,
	ModelCyber175: IsSeries170 | HasChannelFlag | HasErrorFlag |
		HasRelocationRegLong | HasInterlockReg | HasStatusAndControlReg |
		HasInstructionStack | HasIStackPrefetch | HasCMU | HasFullRTC,
	ModelCyber840A: IsSeries800 | HasChannelFlag | HasErrorFlag |
		HasRelocationRegLong | HasInterlockReg | HasStatusAndControlReg |
		HasInstructionStack | HasIStackPrefetch | HasCMU | HasFullRTC |
		HasMicrosecondClock | HasTwoPortMux,
	Model865: IsSeries800 | HasChannelFlag | HasErrorFlag |
		HasRelocationRegLong | HasInterlockReg | HasStatusAndControlReg |
		HasInstructionStack | HasIStackPrefetch | HasCMU | HasFullRTC |
		HasMicrosecondClock | HasTwoPortMux | HasNoCmWrap,
}

// FeaturesFor returns the feature bitset for t. Selection is done once, at
// installation init; the returned set never changes afterward.
func FeaturesFor(t Type) Feature {
	return features[t]
}

// Is865 reports whether the PP-side RPN and the CPU-side RX/WX opcodes
// (01.4 / 01.5) should be honored. Per original_source/CppCyber, these
// opcodes are gated on the model enum value directly, not on a feature
// bit — every other Series-800 model (840A) treats them as illegal.
func Is865(t Type) bool {
	return t == Model865
}

// DefaultChannelCount returns the channel count the reference
// implementation derives from the PP barrel size when a configuration
// does not declare one explicitly (see SPEC_FULL.md §1c).
func DefaultChannelCount(ppCount int) int {
	if ppCount == 10 {
		return 16
	}
	return 32
}
