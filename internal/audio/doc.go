// Package audio holds per-session PCM storage and the conversions needed to
// hand audio to a recognition engine in its canonical form: 16 kHz, mono,
// signed 16-bit little-endian samples.
package audio
