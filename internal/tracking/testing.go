package tracking

import "sync"

// ResetForTesting drops the cached instruments so the next record call binds
// to the meter provider currently installed globally.
func ResetForTesting() {
	meterOnce = sync.Once{}
	attempts = nil
	retries = nil
	backoffWait = nil
	outcomes = nil
	queueDepth = nil
}
