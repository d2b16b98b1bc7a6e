package retry

import (
	nethttp "net/http"

	"github.com/gaborage/requeue/transport"
)

// Predicate decides whether a completed attempt warrants a retry. It must
// be free of side effects; resp may be nil.
type Predicate func(resp *transport.Response, err error) bool

// retryableStatus lists the statuses ShouldRetry treats as transient,
// including the Cloudflare origin errors 521, 522 and 524.
var retryableStatus = map[int]struct{}{
	nethttp.StatusRequestTimeout:      {},
	nethttp.StatusTooManyRequests:     {},
	nethttp.StatusInternalServerError: {},
	nethttp.StatusBadGateway:          {},
	nethttp.StatusServiceUnavailable:  {},
	nethttp.StatusGatewayTimeout:      {},
	521:                               {},
	522:                               {},
	524:                               {},
}

// ShouldRetry is the default Predicate. It retries network failures,
// attempt timeouts and transient statuses. Aborted attempts and request
// misuse are terminal.
func ShouldRetry(resp *transport.Response, err error) bool {
	switch {
	case transport.IsErrorType(err, transport.AbortedError),
		transport.IsErrorType(err, transport.ValidationError):
		return false
	case transport.IsErrorType(err, transport.NetworkError),
		transport.IsErrorType(err, transport.TimeoutError):
		return true
	}

	status := transport.StatusCode(err)
	if resp != nil {
		status = resp.StatusCode
	}
	_, ok := retryableStatus[status]
	return ok
}
