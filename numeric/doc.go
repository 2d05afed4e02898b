// Package numeric maps WebAssembly value types onto 32-bit shader words.
//
// Every value crossing a frame boundary (locals, stack slots, arguments and
// results) is stored as a fixed number of u32 words decided by a Layout:
//
//	I32, F32  1 word
//	I64       2 words, little-endian [lo, hi]
//	F64       2 words (hardware f64) or 3 words (emulated a, b, c)
//	V128      4 words, little-endian
//
// The emulated F64 triple represents (a+b)·2^c with a and b float32 and c an
// integer exponent. A triple is normalized when a is zero or has exponent 0,
// a and b share sign, and b's exponent is at least 24 below a's.
package numeric
