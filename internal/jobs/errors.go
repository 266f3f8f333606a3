package jobs

import "errors"

var (
	// ErrNotFound is returned when a job id does not exist in the store.
	ErrNotFound = errors.New("job not found")

	// ErrNoCategories is returned when a submission carries an empty
	// category list. Nothing is persisted or published in that case.
	ErrNoCategories = errors.New("at least one category is required")

	// ErrInvalidStatus is returned for a status outside the lifecycle set.
	ErrInvalidStatus = errors.New("invalid job status")
)
