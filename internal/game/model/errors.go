package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation cobre qualquer entrada malformada (zona, valor, paginação)
	ErrValidation = errors.New("validation error")
	ErrInvalidBet = fmt.Errorf("%w: invalid bet", ErrValidation)

	ErrNoActiveRound        = errors.New("no active round")
	ErrRoundNotFound        = errors.New("round not found")
	ErrInvalidTransition    = errors.New("invalid round status transition")
	ErrLockTimeout          = errors.New("lock timeout")
	ErrConsistencyViolation = errors.New("consistency violation")
)
