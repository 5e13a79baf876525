/*
 * cyber6000 - Convert machine words to octal strings.
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

// Package octal formats machine words the way console displays and dumps
// do on this class of machine: octal digits, not hex. Console output (the
// operator's "show" verbs) and register dumps go through here instead of
// each caller hand-rolling fmt.Sprintf("%o", ...) calls.
package octal

import "strings"

var octMap = "01234567"

// FormatWord18 writes an 18-bit address or register as six octal digits.
func FormatWord18(str *strings.Builder, word uint32) {
	shift := 15
	for range 6 {
		str.WriteByte(octMap[(word>>shift)&0x7])
		shift -= 3
	}
}

// FormatWord60 writes a 60-bit X register as twenty octal digits.
func FormatWord60(str *strings.Builder, word uint64) {
	shift := 57
	for range 20 {
		str.WriteByte(octMap[(word>>shift)&0x7])
		shift -= 3
	}
}

// FormatWords60 writes a slice of 60-bit words, space-separated.
func FormatWords60(str *strings.Builder, words []uint64) {
	for i, w := range words {
		if i > 0 {
			str.WriteByte(' ')
		}
		FormatWord60(str, w)
	}
}

// FormatParcel writes a 15-bit parcel (one sixty-bit-word quarter) as five
// octal digits.
func FormatParcel(str *strings.Builder, parcel uint16) {
	shift := 12
	for range 5 {
		str.WriteByte(octMap[(parcel>>shift)&0x7])
		shift -= 3
	}
}
