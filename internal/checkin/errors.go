package checkin

import "errors"

var (
	ErrDuplicateID     = errors.New("registration id already exists")
	ErrNotFound        = errors.New("registration not found")
	ErrTagAlreadyBound = errors.New("tag already bound")
	ErrUnknownTag      = errors.New("unknown tag")
	ErrInvalidLocation = errors.New("invalid location")
	ErrNegativeCredits = errors.New("meal credits cannot go below zero")
	ErrInvalidInput    = errors.New("invalid input")
)
