package domain

import "errors"

var (
	// ErrProductNotFound is returned by outbound/admin call sites where the
	// product id is caller-supplied. Inbound reconciliation logs and skips
	// instead, because upstream may reference products not yet imported.
	ErrProductNotFound = errors.New("product not found")

	ErrProductExists = errors.New("product already exists")
)
