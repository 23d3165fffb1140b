package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/career-marketplace/internal/logger"
)

// Go запускает горутину с восстановлением после panic.
// name попадает в лог, чтобы было видно, какая фоновая задача упала.
func Go(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// GoWithContext то же, что Go, но передаёт контекст в функцию.
func GoWithContext(ctx context.Context, name string, fn func(context.Context)) {
	go func() {
		defer Recover(name)
		fn(ctx)
	}()
}

// Recover логирует panic текущей горутины. Вызывается только через defer.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Log.WithFields(logrus.Fields{
			"goroutine": name,
			"panic":     r,
			"stack":     string(debug.Stack()),
		}).Error("Panic в горутине перехвачена")
	}
}
