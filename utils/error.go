package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrInvalidAmount    = errors.New("invalid amount")
)
