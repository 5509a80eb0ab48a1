package editor

import "errors"

var (
	// 错误：已有命令在执行中（回调中重入）
	ErrBusy = errors.New("another edit is in flight")
	// 错误：没有可撤销的命令
	ErrNothingToUndo = errors.New("nothing to undo")
	// 错误：没有可重做的命令
	ErrNothingToRedo = errors.New("nothing to redo")
)
