package dberrors

import "errors"

var (
	ErrClosed          = errors.New("asynckv: closed")
	ErrInvalidArgument = errors.New("asynckv: invalid argument")
	ErrCorruption      = errors.New("asynckv: corruption")
)
