package service

import "errors"

var (
	ErrAmountOutOfRange     = errors.New("withdrawal amount out of allowed range")
	ErrUserNotActive        = errors.New("user account is not active")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrNotWithdrawal        = errors.New("transaction is not a withdrawal")
	ErrNotCancellable       = errors.New("withdrawal can no longer be cancelled")
	ErrNotOwner             = errors.New("transaction belongs to another user")
	ErrAlreadyProcessed     = errors.New("transaction already processed")
	ErrLockNotAcquired      = errors.New("operation already in progress")
)
