package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with its stack. Use it in a
// defer statement at the top of background goroutines and scheduled jobs:
//
//	defer observability.RecoverPanic(log, "pool stats job")
//
// The panic is not re-raised.
func RecoverPanic(log *logrus.Logger, where string) {
	if r := recover(); r != nil {
		log.WithFields(logrus.Fields{
			"panic":   fmt.Sprint(r),
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("panic recovered")
	}
}
