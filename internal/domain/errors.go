package domain

import "errors"

var (
	ErrInvalidCriteria   = errors.New("invalid search criteria")
	ErrRemoteUnavailable = errors.New("remote search unavailable")
	ErrJobNotFound       = errors.New("search job not found")
	ErrInvalidJobID      = errors.New("invalid search job id")
	ErrInvalidTourID     = errors.New("invalid tour id")
	ErrTourNotFound      = errors.New("tour not found")
)
