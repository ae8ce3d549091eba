package service

import "errors"

var (
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrInvalidItem        = errors.New("invalid cart item")
	ErrCheckoutInProgress = errors.New("checkout already in progress for this cart")
)
