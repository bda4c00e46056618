package reactiveflow

import "reactiveflow/internal/errs"

// Sentinel errors callers can compare against with errors.Is. Re-exported
// from internal/errs so nothing outside the module ever needs to import
// an internal package directly.
var (
	ErrInvalidType  = errs.InvalidType
	ErrRingDetected = errs.RingDetected
	ErrNoData       = errs.NoData
	ErrExpired      = errs.Expired
	ErrFailed       = errs.Failed
	ErrPending      = errs.Pending
)
