package audio

import "math"

// Resample converts a block of mono samples from srcRate to dstRate using
// linear interpolation. When the rates match the input is returned as-is,
// without copying. The output length is round(len(in) * dstRate / srcRate).
func Resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return in
	}

	if len(in) == 0 {
		return nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		x := float64(i) * ratio
		x0 := int(math.Floor(x))
		if x0 >= len(in) {
			x0 = len(in) - 1
		}
		x1 := x0 + 1
		if x1 >= len(in) {
			x1 = len(in) - 1
		}
		t := float32(x - float64(x0))
		out[i] = in[x0]*(1-t) + in[x1]*t
	}

	return out
}
