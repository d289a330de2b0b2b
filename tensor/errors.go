package tensor

import (
	"github.com/pkg/errors"
)

// Error taxonomy shared by every package of the module.
// Callers match them with errors.Is; context is attached with errors.Wrapf.
var (
	// ErrShape reports a leg or bond dimension mismatch, between adjacent sites or between an MPO and an MPS.
	ErrShape = errors.New("shape error")
	// ErrDimensionMismatch reports incompatible physical dimensions across two chains.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNumerical reports a decomposition failure or non-finite values.
	ErrNumerical = errors.New("numerical error")
	// ErrConfiguration reports invalid parameters such as a non-positive bond dimension.
	ErrConfiguration = errors.New("configuration error")
)
