package credential

import "errors"

// ErrNoneAvailable is returned by Acquire/AcquireExcluding when every
// credential is either disabled or cooling down for the requested model.
var ErrNoneAvailable = errors.New("credential: no eligible credential for model")

// ErrPermanentRefresh indicates the upstream rejected a refresh attempt
// outright (400/401/403); the credential has already been disabled.
var ErrPermanentRefresh = errors.New("credential: refresh rejected, credential disabled")

// ErrTemporaryRefresh indicates a refresh attempt failed transiently
// (network error, an undecodable or token-less success body, or any
// status other than 2xx and 400/401/403); the credential remains enabled.
var ErrTemporaryRefresh = errors.New("credential: refresh failed transiently")
