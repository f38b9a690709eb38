// Package resampler converts mono waveforms between sample rates.
//
// It is a thin wrapper around the pure Go go-audio-resampling library using
// its high quality preset. Conversion is whole-buffer: the filter tail is
// flushed with silence and the output is trimmed to
// round(len(in) * dstRate / srcRate) samples.
//
// Example usage:
//
//	w, err := resampler.Resample(waveform, 22050)
//	if err != nil {
//	    return err
//	}
//	vec, err := features.ExtractWaveform(w)
package resampler
