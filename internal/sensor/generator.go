package sensor

import (
	"math/rand/v2"
)

// Generator produces the next value for one sensor.
type Generator func() float32

// UniformInt draws an integer uniformly from [lo, hi] and scales it.
func UniformInt(r *rand.Rand, lo, hi int, scale float32) Generator {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	return func() float32 {
		var n int
		if r != nil {
			n = r.IntN(span)
		} else {
			n = rand.IntN(span)
		}
		return float32(lo+n) * scale
	}
}

// DefaultGenerator returns the stock generator for k. A nil r uses the
// global source.
func DefaultGenerator(k Kind, r *rand.Rand) Generator {
	switch k {
	case Humidity:
		return UniformInt(r, 68, 70, 1.02)
	case Temperature:
		return UniformInt(r, 25, 27, 1.02)
	case Rain:
		return UniformInt(r, 0, 1, 1)
	default:
		return func() float32 { return 0 }
	}
}

// Constant always yields v.
func Constant(v float32) Generator {
	return func() float32 { return v }
}

// Sequence yields vs in order, then keeps repeating the last one.
func Sequence(vs ...float32) Generator {
	i := 0
	return func() float32 {
		if len(vs) == 0 {
			return 0
		}
		v := vs[i]
		if i < len(vs)-1 {
			i++
		}
		return v
	}
}
