package workflow

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Machine errors wrap the entity taxonomy so callers can match them with
// errors.Is against entity.ErrInvalidTransition or entity.ErrValidation.
var (
	ErrInvalidTransition = fmt.Errorf("%w: report status", entity.ErrInvalidTransition)
	ErrGuardFailed       = fmt.Errorf("%w: routing guard rejected trigger", entity.ErrInvalidTransition)
	ErrInvalidState      = fmt.Errorf("%w: unknown report status", entity.ErrValidation)
)
