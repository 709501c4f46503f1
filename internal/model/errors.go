package model

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMatchEnded        = errors.New("match has ended")
	ErrScoreZero         = errors.New("score already 0")
	ErrUnauthenticated   = errors.New("not signed in")
)

var ErrNotPlaying = errors.New("match is not playing")
