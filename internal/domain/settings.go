package domain

import "fmt"

// Settings are the generation parameters chosen by the user.
type Settings struct {
	Temperature float32
	// MaxOutputLength caps the reply length in tokens; 0 means model default.
	MaxOutputLength int32
	// AllowInterruption lets a new submission cancel an active debate turn.
	AllowInterruption bool
}

func DefaultSettings() Settings {
	return Settings{
		Temperature:       0.7,
		AllowInterruption: true,
	}
}

func (s Settings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("%w: temperature %.2f out of range [0,1]", ErrInvalidSettings, s.Temperature)
	}
	if s.MaxOutputLength < 0 {
		return fmt.Errorf("%w: negative max output length", ErrInvalidSettings)
	}
	return nil
}
