package domain

import "errors"

var (
	// ErrInvalidInput marks client errors rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCollectionNotFound is returned when querying a collection that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned for vectors whose length differs from the store's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIncompatibleStore is returned when a durable store was written by another model.
	ErrIncompatibleStore = errors.New("incompatible vector store")
	// ErrEmptyDocument is returned when a source yields no chunks.
	ErrEmptyDocument = errors.New("document produced no text")
)
