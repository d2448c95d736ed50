package tts

import "errors"

var (
	// ErrTextTooLong reports input above the configured character limit.
	ErrTextTooLong = errors.New("text exceeds maximum length")
	// ErrLatentTooLong reports a predicted latent above the refinement cap.
	ErrLatentTooLong = errors.New("predicted audio exceeds maximum latent length")
	// ErrUnknownVoice reports a voice id absent from the loaded voice set.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrInvalidOption reports a synthesis option outside its valid range.
	ErrInvalidOption = errors.New("invalid synthesis option")
)
