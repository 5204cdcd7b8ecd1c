package leaderboard

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is wrapped by every configuration failure.
var ErrInvalidConfig = errors.New("invalid board configuration")

// Config is the per-board runtime configuration.
type Config struct {
	Size            int  `validate:"gt=0"`
	OnlineEnabled   bool
	OnlineInterval  int  `validate:"gt=0"` // ticks between active-identifier sweeps
	RotativeEnabled bool
	RotativeSize    int  `validate:"gt=0"` // window walked by the rotating sweep
	BatchSize       int  `validate:"gt=0"`
	TickDelay       int  `validate:"gte=0"` // ticks between processing runs
}

// DefaultConfig returns the defaults used for unset board keys.
func DefaultConfig() Config {
	return Config{
		Size:           10,
		OnlineEnabled:  true,
		OnlineInterval: 100,
		RotativeSize:   50,
		BatchSize:      5,
		TickDelay:      1,
	}
}

var validate = validator.New()

// Validate fails on non-positive required fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s must be %s %s, got %v", ErrInvalidConfig, f.Field(), f.Tag(), f.Param(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
