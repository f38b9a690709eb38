// Package wav reads and writes PCM WAV files as mono waveforms.
//
// Decoding accepts integer PCM at 8, 16, 24 or 32 bits with any channel
// count; channels are averaged to mono and samples scaled to [-1, 1).
// Encoding writes mono 16-bit PCM, clipping samples outside [-1, 1].
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
)

const formatPCM = 1

// Decode reads a WAV stream into a mono waveform. Malformed or unsupported
// input fails with *features.InvalidAudioError.
func Decode(r io.Reader) (features.Waveform, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return features.Waveform{}, fmt.Errorf("wav: read: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	d := gowav.NewDecoder(rs)
	if !d.IsValidFile() {
		return features.Waveform{}, invalid("not a WAV file", d.Err())
	}
	if d.WavAudioFormat != formatPCM {
		return features.Waveform{}, invalid(fmt.Sprintf("unsupported WAV format %d, want integer PCM", d.WavAudioFormat), nil)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return features.Waveform{}, invalid(fmt.Sprintf("unsupported bit depth %d", d.BitDepth), nil)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return features.Waveform{}, invalid("decode PCM", err)
	}
	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return features.Waveform{}, invalid("no channels", nil)
	}
	rate := int(d.SampleRate)
	if rate <= 0 {
		return features.Waveform{}, invalid(fmt.Sprintf("sample rate %d", rate), nil)
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return features.Waveform{}, invalid("no samples", nil)
	}

	scale, offset := pcmScale(int(d.BitDepth))
	samples := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return features.Waveform{Samples: samples, SampleRate: rate}, nil
}

// pcmScale returns the full-scale divisor and the zero offset of a bit
// depth. 8-bit WAV is unsigned with its zero at 128.
func pcmScale(bitDepth int) (scale, offset float64) {
	if bitDepth == 8 {
		return 128, 128
	}
	return float64(int64(1) << (bitDepth - 1)), 0
}

func invalid(reason string, err error) error {
	return &features.InvalidAudioError{Reason: "wav: " + reason, Err: err}
}

// Encode writes w as mono 16-bit PCM.
func Encode(ws io.WriteSeeker, w features.Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("wav: invalid sample rate %d", w.SampleRate)
	}
	enc := gowav.NewEncoder(ws, w.SampleRate, 16, 1, formatPCM)
	data := make([]int, len(w.Samples))
	for i, v := range w.Samples {
		v = min(max(v, -1), 1)
		data[i] = int(v * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: close: %w", err)
	}
	return nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (features.Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return features.Waveform{}, fmt.Errorf("wav: open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile encodes w into a new file at path.
func WriteFile(path string, w features.Waveform) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("wav: close: %w", cerr)
		}
	}()
	return Encode(f, w)
}

// IsInvalid reports whether err came from malformed audio input.
func IsInvalid(err error) bool {
	return errors.Is(err, features.ErrInvalidAudio)
}
