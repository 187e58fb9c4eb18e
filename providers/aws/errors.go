package aws

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/skiffworks/skiff/providers"
)

// retryableCodes are EC2 failures that clear up on their own. Mostly
// throttling and capacity; the reconciler backs off and retries these.
var retryableCodes = map[string]bool{
	"RequestLimitExceeded":         true,
	"Throttling":                   true,
	"ThrottlingException":          true,
	"InsufficientInstanceCapacity": true,
	"InternalError":                true,
	"InternalFailure":              true,
	"Unavailable":                  true,
	"RequestTimeout":               true,
}

// authCodes mean the credentials themselves were rejected. No amount of
// retrying fixes these.
var authCodes = map[string]bool{
	"AuthFailure":           true,
	"UnauthorizedOperation": true,
	"ExpiredToken":          true,
	"ExpiredTokenException": true,
	"InvalidClientTokenId":  true,
	"SignatureDoesNotMatch": true,
	"OptInRequired":         true,
}

// classify wraps an SDK error in a providers.Error with the kind the
// reconciler keys on. Anything that never reached the API, like a DNS
// or dial failure, counts as the provider being unavailable.
func classify(op string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &providers.Error{Op: op, Kind: providers.KindUnavailable, Err: err}
	}

	code := apiErr.ErrorCode()
	switch {
	case retryableCodes[code]:
		return &providers.Error{Op: op, Code: code, Kind: providers.KindTransient, Err: err}
	case authCodes[code]:
		return &providers.Error{Op: op, Code: code, Kind: providers.KindAuth, Err: err}
	case apiErr.ErrorFault() == smithy.FaultServer:
		return &providers.Error{Op: op, Code: code, Kind: providers.KindTransient, Err: err}
	default:
		return &providers.Error{Op: op, Code: code, Kind: providers.KindClient, Err: err}
	}
}
