package shared

import "errors"

// ErrMissingPrincipal occurs when a request carries no caller identity.
var ErrMissingPrincipal = errors.New("missing caller principal")
