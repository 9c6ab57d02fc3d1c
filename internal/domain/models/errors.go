package models

import "errors"

var (
	ErrMalformedBar        = errors.New("malformed bar")
	ErrOutOfOrderBar       = errors.New("bar out of order")
	ErrStateNotFound       = errors.New("session state not found")
	ErrCorruptState        = errors.New("corrupt session state")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrUnknownSymbol       = errors.New("unknown symbol")
)
