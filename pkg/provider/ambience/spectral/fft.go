package spectral

import "math"

// magnitudeSpectrum returns the magnitudes of the first n/2 bins of the
// discrete Fourier transform of frame. The frame length must be a power of
// two (the analysis loop guarantees frameSize is).
func magnitudeSpectrum(frame []float64) []float64 {
	n := len(frame)
	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, frame)

	fft(re, im)

	mags := make([]float64, n/2)
	for k := range mags {
		mags[k] = math.Hypot(re[k], im[k])
	}
	return mags
}

// fft computes an in-place iterative radix-2 Cooley-Tukey transform.
func fft(re, im []float64) {
	n := len(re)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := 0; k < half; k++ {
				i, j := start+k, start+k+half
				tRe := re[j]*curRe - im[j]*curIm
				tIm := re[j]*curIm + im[j]*curRe
				re[j], im[j] = re[i]-tRe, im[i]-tIm
				re[i], im[i] = re[i]+tRe, im[i]+tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
