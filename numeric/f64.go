package numeric

import "math"

// Triple is an emulated f64 value (A+B)·2^C.
type Triple struct {
	A float32
	B float32
	C int32
}

// low mantissa bits of a float64 dropped to fit a float32 mantissa
const truncBits = 52 - 23

func truncate32(x float64) float32 {
	return float32(math.Float64frombits(math.Float64bits(x) &^ (1<<truncBits - 1)))
}

// split breaks s into a triple whose value is s·2^base, truncated to 48
// significant bits.
func split(s float64, base int32) Triple {
	if s == 0 || math.IsInf(s, 0) || math.IsNaN(s) {
		return Triple{A: float32(s)}
	}
	frac, exp := math.Frexp(s)
	m := frac * 2 // [1, 2)
	a := truncate32(m)
	rem := m - float64(a)
	return Triple{A: a, B: truncate32(rem), C: base + int32(exp-1)}
}

// EncodeF64 converts x into a normalized triple.
// The conversion is exact for values with at most 48 significant bits.
func EncodeF64(x float64) Triple {
	return split(x, 0)
}

// Float64 converts the triple back to a float64, saturating to ±Inf or ±0
// outside the float64 range.
func (t Triple) Float64() float64 {
	s := float64(t.A)
	if t.B != 0 {
		s += float64(t.B)
	}
	return math.Ldexp(s, int(t.C))
}

// Normalize re-establishes the normal form of a triple produced by an
// operation that may have denormalized it.
func (t Triple) Normalize() Triple {
	s := float64(t.A)
	if t.B != 0 {
		s += float64(t.B)
	}
	if s == 0 {
		return Triple{A: float32(s)}
	}
	return split(s, t.C)
}

// IsNormalized reports whether the triple is in normal form: a in [1, 2)
// up to sign, and b zero or of the same sign at least 2^24 times smaller.
func (t Triple) IsNormalized() bool {
	a, b := float64(t.A), float64(t.B)
	if a == 0 || math.IsInf(a, 0) || math.IsNaN(a) {
		return b == 0 && t.C == 0
	}
	if _, exp := math.Frexp(a); exp != 1 {
		return false
	}
	if b == 0 {
		return true
	}
	if (a < 0) != (b < 0) {
		return false
	}
	_, expB := math.Frexp(b)
	return expB-1 <= -24
}

// Words returns the [a, b, c] word encoding.
func (t Triple) Words() [3]uint32 {
	return [3]uint32{math.Float32bits(t.A), math.Float32bits(t.B), uint32(t.C)}
}

// TripleFromWords decodes [a, b, c] words.
func TripleFromWords(w [3]uint32) Triple {
	return Triple{A: math.Float32frombits(w[0]), B: math.Float32frombits(w[1]), C: int32(w[2])}
}

// Emulated arithmetic evaluates in float64 and re-normalizes the result.

func AddF64(x, y Triple) Triple { return EncodeF64(x.Float64() + y.Float64()) }
func SubF64(x, y Triple) Triple { return EncodeF64(x.Float64() - y.Float64()) }
func MulF64(x, y Triple) Triple { return EncodeF64(x.Float64() * y.Float64()) }
func DivF64(x, y Triple) Triple { return EncodeF64(x.Float64() / y.Float64()) }
