package model

import "errors"

// Entity-level sentinel errors. Validation errors are never persisted;
// illegal-transition errors distinguish "already in desired state" from a
// genuine conflict at the service layer.
var (
	ErrInvalidSignalGeometry      = errors.New("invalid signal geometry")
	ErrIllegalSignalTransition    = errors.New("illegal signal transition")
	ErrIllegalExecutionTransition = errors.New("illegal execution transition")
	ErrAlreadyClosed              = errors.New("execution already closed")
)
