// Package transcription bridges session loops and a blocking recognition
// engine. Sessions push immutable Jobs onto a Queue; a single Worker drains
// it, calls the Engine and publishes Results on a channel. Nothing else
// crosses between the two sides.
package transcription
