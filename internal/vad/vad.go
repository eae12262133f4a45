// Package vad provides the per-frame speech/non-speech classifiers that back
// the Speech Gate. Two backends are selectable by name (VAD_BACKEND env var):
// "webrtc", a dependency-light frame-energy gate, and "silero", a
// neural gate running through onnxruntime. Both satisfy Backend.
package vad

// Backend classifies a single PCM frame as speech or non-speech. Frames are
// delivered as little-endian signed 16-bit PCM, matching what a neural VAD
// model typically expects and what the classic energy-gate style of VAD
// operates on.
type Backend interface {
	// IsSpeech reports whether the frame contains speech at the given
	// sample rate.
	IsSpeech(pcm16 []byte, sampleRate int) (bool, error)

	// Reset clears any internal adaptation state (e.g. a calibrated noise
	// floor) so the backend can be reused for a fresh utterance stream.
	Reset()
}
