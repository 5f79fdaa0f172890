package domain

import "errors"

var (
	ErrSaleNotFound     = errors.New("sale not found")
	ErrSaleNotActive    = errors.New("sale not active")
	ErrDuplicateOrder   = errors.New("order already exists for user")
	ErrInvalidID        = errors.New("invalid id")
	ErrSaleNameRequired = errors.New("sale name required")
	ErrInvalidStock     = errors.New("total stock must be positive")
	ErrInvalidWindow    = errors.New("sale window end must be after start")
)
