package lifecycle

import "errors"

var (
	// ErrAlreadyStarted 任务已启动过
	ErrAlreadyStarted = errors.New("task already started")
)
