// Package services defines the business logic for accounts, the credit
// ledger, and music generation tasks. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages is performed by the bot's command
// layer.
package services

import "errors"

var (
	// ErrInsufficientCredits is returned when a generation is requested by
	// a user whose balance cannot cover the captured cost. The charge
	// itself reports this condition via its bool result; the task service
	// converts it to this sentinel for its own callers.
	ErrInsufficientCredits = errors.New("not enough credits")

	// ErrInsufficientBalance is the withdrawable-balance counterpart of
	// ErrInsufficientCredits.
	ErrInsufficientBalance = errors.New("not enough referral balance")

	// ErrUserNotFound indicates that the referenced user row does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTaskNotFound indicates that the requested task does not exist or
	// is not accessible to the current user.
	ErrTaskNotFound = errors.New("track not found")

	// ErrReferralRejected is returned when a referral payload cannot be
	// applied: the user already has a referrer, refers to themselves, or
	// names an unknown referrer.
	ErrReferralRejected = errors.New("referral not applicable")

	// ErrSubmitFailed wraps a provider-side failure to accept a generation
	// job. The charged credits have already been returned when this is
	// reported.
	ErrSubmitFailed = errors.New("generation could not be started")
)
