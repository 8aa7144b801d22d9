package match

import "errors"

var (
	ErrInvalidParam = errors.New("the param is invalid")
	ErrTimeout      = errors.New("timeout")
	ErrShutdown     = errors.New("order book is shutting down")
	ErrNotFound     = errors.New("not found")
)
