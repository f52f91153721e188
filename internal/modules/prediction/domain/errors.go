package domain

import "errors"

var (
	ErrSuperseded  = errors.New("prediction superseded by a newer round")
	ErrRoundFailed = errors.New("prediction round failed")
)
