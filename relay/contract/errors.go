package contract

import "errors"

var (
	ErrValidation  = errors.New("inbound payload validation failed")
	ErrPersistence = errors.New("contact store operation failed")
	ErrResolution  = errors.New("intent resolution failed")
	ErrLookup      = errors.New("weather lookup failed")
	ErrDispatch    = errors.New("reply dispatch failed")
)
