// Package audio groups the signal-level building blocks used by feature
// extraction and ingestion:
//
//   - fbank: windowed STFT, mel filterbank and DCT
//   - resampler: sample-rate conversion
//   - wav: WAV decoding to mono waveforms and 16-bit encoding
package audio
