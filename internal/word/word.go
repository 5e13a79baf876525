/*
 * cyber6000 - Ones-complement arithmetic primitives.
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

// Package word implements the 60-bit one's-complement subtractive-adder
// arithmetic the CPU and PP engines are built on, plus the shift and
// population-count primitives opcodes 20-23 and 47 need.
package word

// Mask60 isolates the low 60 bits of a CpWord.
const Mask60 uint64 = 0x0fffffffffffffff

// Mask18, Mask21, Mask24 isolate the corresponding address field widths.
const (
	Mask12 uint32 = 0xfff
	Mask18 uint32 = 0x3ffff
	Mask21 uint32 = 0x1fffff
	Mask24 uint32 = 0xffffff
	Mask28 uint32 = 0xfffffff
	Mask30 uint32 = 0x3fffffff
)

// signBit60 is the sign bit of a 60-bit word.
const signBit60 uint64 = 1 << 59

// add performs a one's-complement subtractive-adder add of two values
// masked to width bits, with end-around carry: acc = op1 - (~op2), and if
// the result's overflow bit (bit `width`) is set, acc -= 1 to fold the
// carry back in.
func add(op1, op2 uint64, width uint) uint64 {
	mask := uint64(1)<<width - 1
	op1 &= mask
	op2 &= mask
	acc := op1 - (op2 ^ mask)
	if acc&(mask+1) != 0 {
		acc--
	}
	return acc & mask
}

// Add18 adds two 18-bit operands with end-around carry.
func Add18(a, b uint32) uint32 {
	return uint32(add(uint64(a), uint64(b), 18))
}

// Add21 adds two 21-bit operands with end-around carry (Series-800 RA width).
func Add21(a, b uint32) uint32 {
	return uint32(add(uint64(a), uint64(b), 21))
}

// Add24 adds two 24-bit operands with end-around carry.
func Add24(a, b uint32) uint32 {
	return uint32(add(uint64(a), uint64(b), 24))
}

// Add60 adds two 60-bit operands with end-around carry (opcodes 36/37, IX).
func Add60(a, b uint64) uint64 {
	return add(a, b, 60)
}

// Subtract18 subtracts b from a over 18 bits: a + (~b).
func Subtract18(a, b uint32) uint32 {
	return Add18(a, ^b)
}

// Subtract24 subtracts b from a over 24 bits.
func Subtract24(a, b uint32) uint32 {
	return Add24(a, ^b)
}

// Subtract60 subtracts b from a over 60 bits.
func Subtract60(a, b uint64) uint64 {
	return Add60(a, ^b)
}

// Negate60 returns the one's complement negative of a 60-bit value.
func Negate60(a uint64) uint64 {
	return (^a) & Mask60
}

// IsNegative60 reports whether the sign bit of a 60-bit word is set.
func IsNegative60(a uint64) bool {
	return a&signBit60 != 0
}

// ShiftLeftCircular rotates the low 60 bits of x left by n, 0 <= n.
// n is reduced modulo 60 first so ShiftLeftCircular(x, 60) == x.
func ShiftLeftCircular(x uint64, n uint) uint64 {
	x &= Mask60
	n %= 60
	if n == 0 {
		return x
	}
	return ((x << n) | (x >> (60 - n))) & Mask60
}

// ShiftRightArithmetic shifts the low 60 bits of x right by n, replicating
// the sign bit, as opcode 21/23 (AX) require. n beyond 63 yields a result of
// all-sign-bit (0 for a positive operand).
func ShiftRightArithmetic(x uint64, n uint) uint64 {
	x &= Mask60
	if n >= 60 {
		if IsNegative60(x) {
			return Mask60
		}
		return 0
	}
	if !IsNegative60(x) {
		return x >> n
	}
	filled := x >> n
	fill := (Mask60 << (60 - n)) & Mask60
	return (filled | fill) & Mask60
}

// PopCount60 returns the number of one-bits in the low 60 bits of x
// (opcode 47, CXi).
func PopCount60(x uint64) int {
	count := 0
	x &= Mask60
	for x != 0 {
		count += int(x & 1)
		x >>= 1
	}
	return count
}
