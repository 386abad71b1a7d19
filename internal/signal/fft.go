// Package signal provides the pure numeric routines shared by the fraud
// detectors: spectral transforms, goodness-of-fit statistics, outlier
// scoring, and graph community detection. All functions are stateless and
// operate on plain slices.
package signal

import (
	"math"
	"math/cmplx"
)

// FFT computes the discrete Fourier transform of the input series using the
// radix-2 Cooley-Tukey algorithm. Inputs whose length is not a power of two
// are zero-padded up to the next power of two.
func FFT(series []float64) []complex128 {
	n := nextPowerOfTwo(len(series))
	buf := make([]complex128, n)
	for i, v := range series {
		buf[i] = complex(v, 0)
	}
	fftInPlace(buf)
	return buf
}

// PowerSpectrum returns the magnitude of each positive-frequency FFT bin
// (bins 1..n/2), skipping the DC component. Index k of the returned slice
// corresponds to frequency (k+1)/n cycles per sample, where n is the padded
// series length.
func PowerSpectrum(series []float64) []float64 {
	spectrum := FFT(detrend(series))
	half := len(spectrum) / 2
	if half <= 1 {
		return nil
	}
	power := make([]float64, half-1)
	for k := 1; k < half; k++ {
		power[k-1] = cmplx.Abs(spectrum[k])
	}
	return power
}

// DominantFrequency returns the index (into the PowerSpectrum slice) and
// amplitude of the strongest positive-frequency component, along with the
// median amplitude of the remaining bins as a noise floor estimate.
// Returns ok=false when the spectrum is too short to be meaningful.
func DominantFrequency(series []float64) (peakIdx int, amplitude, noiseFloor float64, ok bool) {
	power := PowerSpectrum(series)
	if len(power) < 4 {
		return 0, 0, 0, false
	}

	peakIdx = 0
	for i, p := range power {
		if p > power[peakIdx] {
			peakIdx = i
		}
	}
	amplitude = power[peakIdx]

	rest := make([]float64, 0, len(power)-1)
	for i, p := range power {
		if i != peakIdx {
			rest = append(rest, p)
		}
	}
	noiseFloor = Median(rest)
	return peakIdx, amplitude, noiseFloor, true
}

// fftInPlace runs an iterative radix-2 FFT. len(buf) must be a power of two.
func fftInPlace(buf []complex128) {
	n := len(buf)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := buf[start+k]
				v := buf[start+k+length/2] * w
				buf[start+k] = u + v
				buf[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}

// detrend removes the series mean so the DC component does not dominate the
// spectrum.
func detrend(series []float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	mean := Mean(series)
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = v - mean
	}
	return out
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
