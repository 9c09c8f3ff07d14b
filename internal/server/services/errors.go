// Package services contains the server-side business logic: the refresh
// session, email verification and password reset state machines, the
// authentication orchestrator built on top of them and the profile service.
package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/inboxview/internal/common"
)

// dependencyError tags a store or transport failure with
// common.ErrDependencyFailure. Errors that already belong to the taxonomy
// pass through unchanged.
func dependencyError(op string, err error) error {
	for _, known := range []error{
		common.ErrConcurrentModification,
		common.ErrDuplicateIdentifier,
		common.ErrDependencyFailure,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", common.ErrDependencyFailure, op, err)
}
