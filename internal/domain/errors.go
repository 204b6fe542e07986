package domain

import "errors"

var (
	ErrEmptyEntityName = errors.New("entity name is empty")
	ErrNotAnObject     = errors.New("payload is not a JSON object")
)
