package game

import "errors"

// Engine errors. All of them are caller mistakes: nothing here is transient
// and a rejected operation never changes the round.
var (
	ErrInvalidState    = errors.New("round is not in a state that allows this action")
	ErrWrongLevel      = errors.New("reveal must target the current level")
	ErrAlreadyRevealed = errors.New("level already revealed")
	ErrOutOfRange      = errors.New("slot index out of range")
	ErrInvalidConfig   = errors.New("invalid round configuration")
)

// Session errors raised by the Manager around the engine.
var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrNotOwner            = errors.New("round belongs to another user")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// IsEngineError reports whether err is one of the engine's validation errors.
func IsEngineError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrWrongLevel) ||
		errors.Is(err, ErrAlreadyRevealed) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidConfig)
}
