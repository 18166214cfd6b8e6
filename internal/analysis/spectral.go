package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"github.com/user/pll_qa_go/internal/scenario"
)

// NoiseBandwidthFactor sizes the noise reference band relative to the signal
// band when none is given.
const NoiseBandwidthFactor = 10

// powerFloor keeps log10 finite on empty bins.
const powerFloor = 1e-20

// LastCompleteFrame returns the last frame of exactly fftSize values, or nil.
func LastCompleteFrame(frames [][]float64, fftSize int) []float64 {
	for i := len(frames) - 1; i >= 0; i-- {
		if len(frames[i]) == fftSize {
			return frames[i]
		}
	}
	return nil
}

// FinalFrame extracts the last complete frame from a flat stream of
// consecutive fftSize frames. Trailing partial frames are ignored.
func FinalFrame(flat []float64, fftSize int) []float64 {
	if fftSize <= 0 {
		return nil
	}
	frames := len(flat) / fftSize
	if frames == 0 {
		return nil
	}
	return flat[(frames-1)*fftSize : frames*fftSize]
}

// CenterFrame rotates an FFT-ordered frame by half its length so that index 0
// is the most negative frequency. The input is not modified.
func CenterFrame(frame []float64) []float64 {
	n := len(frame)
	half := n / 2
	out := make([]float64, n)
	copy(out, frame[half:])
	copy(out[n-half:], frame[:half])
	return out
}

// BinAxis returns fftSize frequencies linearly spaced from -fs/2 to +fs/2
// inclusive.
func BinAxis(sampleRate float64, fftSize int) []float64 {
	if fftSize <= 0 {
		return nil
	}
	bins := make([]float64, fftSize)
	if fftSize == 1 {
		bins[0] = -sampleRate / 2
		return bins
	}
	floats.Span(bins, -sampleRate/2, sampleRate/2)
	return bins
}

// BinSpacing is the frequency resolution of an fftSize transform.
func BinSpacing(sampleRate float64, fftSize int) float64 {
	if fftSize <= 0 {
		return 0
	}
	return sampleRate / float64(fftSize)
}

// CarrierToNoise reduces a centred dB power frame to a CNR in dB. The carrier
// is the strongest bin; the signal power is integrated over +-signalBW/2
// around it. The noise density is the mean power of the bins within
// +-noiseBW/2 that are outside the signal band, scaled to the signal band.
// A frame without measurable noise yields +Inf.
func CarrierToNoise(power []float64, binSpacing, signalBW, noiseBW float64) float64 {
	if len(power) == 0 || binSpacing <= 0 {
		return math.NaN()
	}
	carrier := floats.MaxIdx(power)
	sigHalf := int(math.Floor(signalBW / 2 / binSpacing))
	noiseHalf := int(math.Floor(noiseBW / 2 / binSpacing))

	var signal, noise float64
	sigBins, noiseBins := 0, 0
	for i, p := range power {
		d := i - carrier
		if d < 0 {
			d = -d
		}
		lin := math.Pow(10, p/10)
		switch {
		case d <= sigHalf:
			signal += lin
			sigBins++
		case d <= noiseHalf:
			noise += lin
			noiseBins++
		}
	}
	if noiseBins == 0 || noise <= 0 {
		return math.Inf(1)
	}
	density := noise / float64(noiseBins)
	return 10 * math.Log10(signal/(density*float64(sigBins)))
}

// AnalyzeSpectrum aligns the final steady-state frame and measures its CNR.
// A noiseBW of zero selects NoiseBandwidthFactor * signalBW.
func AnalyzeSpectrum(frames [][]float64, sampleRate float64, fftSize int, signalBW, noiseBW float64) (scenario.SpectralSnapshot, bool) {
	frame := LastCompleteFrame(frames, fftSize)
	if frame == nil {
		return scenario.SpectralSnapshot{}, false
	}
	if noiseBW == 0 {
		noiseBW = NoiseBandwidthFactor * signalBW
	}
	spacing := BinSpacing(sampleRate, fftSize)
	centred := CenterFrame(frame)
	return scenario.SpectralSnapshot{
		Power:      centred,
		Bins:       BinAxis(sampleRate, fftSize),
		BinSpacing: spacing,
		CNR:        CarrierToNoise(centred, spacing, signalBW, noiseBW),
	}, true
}

// PowerFrames computes consecutive, non-overlapping Hann-windowed power
// spectra of fftSize samples each, in dB relative to a full-scale tone and in
// FFT order. A trailing partial frame is dropped.
func PowerFrames(samples []complex128, fftSize int) [][]float64 {
	if fftSize <= 0 || len(samples) < fftSize {
		return nil
	}
	fft := fourier.NewCmplxFFT(fftSize)
	ones := make([]complex128, fftSize)
	for i := range ones {
		ones[i] = 1
	}
	gain := 0.0
	for _, w := range window.HannComplex(ones) {
		gain += real(w)
	}

	count := len(samples) / fftSize
	frames := make([][]float64, 0, count)
	buf := make([]complex128, fftSize)
	coeffs := make([]complex128, fftSize)
	for f := 0; f < count; f++ {
		copy(buf, samples[f*fftSize:(f+1)*fftSize])
		window.HannComplex(buf)
		coeffs = fft.Coefficients(coeffs, buf)
		frame := make([]float64, fftSize)
		for i, c := range coeffs {
			mag := cmplx.Abs(c) / gain
			frame[i] = 10 * math.Log10(math.Max(mag*mag, powerFloor))
		}
		frames = append(frames, frame)
	}
	return frames
}
