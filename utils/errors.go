package utils

import (
	"github.com/pkg/errors"
)

// NewIncorrectDoFError is returned when a joint vector does not match the arm's degrees of freedom.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Errorf("number of joint values given (%d) does not match degrees of freedom (%d)", actual, expected)
}
