package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic is meant to be deferred at the top of long-lived
// goroutines. It recovers a panic and logs it with the stack trace;
// the panic is not re-raised.
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": fmt.Sprintf("%v", r),
			"stack": string(debug.Stack()),
			"task":  task,
		}).Error("panic recovered")
	}
}
