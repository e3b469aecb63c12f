package models

import (
	"errors"
	"fmt"
)

var ErrBadRequest = errors.New("bad page token")
var ErrNotFound = errors.New("post is not found")

var ErrValidation = errors.New("invalid post")
var ErrEmptyTitle = fmt.Errorf("%w: title is required", ErrValidation)
var ErrEmptyContent = fmt.Errorf("%w: content is required", ErrValidation)
var ErrNegativeAmount = fmt.Errorf("%w: payment amount must not be negative", ErrValidation)
var ErrAmountTooLow = fmt.Errorf("%w: payment amount is below the minimum", ErrValidation)
