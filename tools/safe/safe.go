package safe

import (
	"SProject/logger"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that a bad frame or a dead connection can't take the process down.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
