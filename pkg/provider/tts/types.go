package tts

// VoiceProfile selects a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Chunk is one piece of synthesised audio.
type Chunk struct {
	// Audio is raw 16-bit little-endian PCM.
	Audio []byte

	// Chars is the number of characters of the input text this chunk
	// voices. Zero when the backend does not report alignment.
	Chars int

	// Err is set on the last chunk of a stream that failed.
	Err error
}
