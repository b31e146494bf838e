package watch

import "go.uber.org/zap"

func logPanic(h Handler, r any) {
	zap.S().Errorw("recovered panic in real-time watch handler", "handler", h, "panic", r)
}
