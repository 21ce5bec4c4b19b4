package stt

import "time"

// Transcript is a speech-to-text result. Both partial and final results use
// this type.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal reports whether the provider committed to this segment.
	IsFinal bool

	// EndOfUtterance reports that the provider detected the end of the
	// speaker's utterance after this segment.
	EndOfUtterance bool

	// Confidence is the overall confidence score (0.0–1.0), or zero if the
	// provider does not report one.
	Confidence float64

	// Words contains per-word timing when available.
	Words []WordDetail
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint for recognition.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g. "Nova").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
