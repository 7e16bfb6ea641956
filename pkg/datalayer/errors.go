// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSearchString means the engine could not parse the free text
	// search clause. Callers should answer it with a client error, not a
	// server error.
	ErrInvalidSearchString = errors.New("invalid search string")

	// ErrInvalidIndexSettings is returned when a settings update is
	// requested without a usable settings payload.
	ErrInvalidIndexSettings = errors.New("invalid index settings")

	// ErrMissingLookupID is a caller contract violation: a delete was
	// requested without an identity in the lookup.
	ErrMissingLookupID = errors.New("there must be an _id in the lookup")
)

// ErrMalformedFilter means the legacy where clause could not be parsed as
// JSON nor by the structured filter grammar. The request is aborted, no
// partial query is emitted.
type ErrMalformedFilter struct {
	Where string
}

func (e ErrMalformedFilter) Error() string {
	return fmt.Sprintf("malformed filter: %q", e.Where)
}

type ErrResourceNotConfigured struct {
	Resource string
}

func (e ErrResourceNotConfigured) Error() string {
	return fmt.Sprintf("resource [%s] not configured", e.Resource)
}
