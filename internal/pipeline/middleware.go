package pipeline

import (
	"context"
	"time"
)

// Task 是 pipeline 中的一个分支：同一 stage 的任务并行执行。
type Task struct {
	Name  string
	Stage int
	// Critical 任务失败会让整个 Run 返回错误；否则仅记为 warning。
	Critical bool
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// TaskError 封装任务的失败信息。
type TaskError struct {
	Task     string
	Stage    int
	Critical bool
	Err      error
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Task
	}
	return e.Task + ": " + e.Err.Error()
}

func (e *TaskError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
