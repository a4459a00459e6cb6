package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"botcore/internal/logger"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many tasks of one stage run at once.
const DefaultConcurrency = 3

// Pipeline 负责按 stage 调度一组任务。
type Pipeline struct {
	name   string
	limit  int
	stages [][]Task
}

// New 创建 Pipeline，并按 stage 归类任务。limit<=0 使用 DefaultConcurrency。
func New(name string, limit int, tasks ...Task) *Pipeline {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	stageMap := make(map[int][]Task)
	for _, t := range tasks {
		if t.Run == nil {
			continue
		}
		stageMap[t.Stage] = append(stageMap[t.Stage], t)
	}
	keys := make([]int, 0, len(stageMap))
	for st := range stageMap {
		keys = append(keys, st)
	}
	sort.Ints(keys)
	stages := make([][]Task, 0, len(keys))
	for _, st := range keys {
		stages = append(stages, stageMap[st])
	}
	return &Pipeline{name: name, limit: limit, stages: stages}
}

// Run 依次执行各 stage。非关键任务的失败以 warnings 返回，不会取消同级任务；
// 关键任务失败时在当前 stage 结束后返回。
func (p *Pipeline) Run(ctx context.Context) (warnings []*TaskError, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, stage := range p.stages {
		warns, stageErr := p.runStage(ctx, stage)
		warnings = append(warnings, warns...)
		if stageErr != nil {
			return warnings, stageErr
		}
	}
	return warnings, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage []Task) ([]*TaskError, error) {
	var (
		mu       sync.Mutex
		warnings []*TaskError
		critical *TaskError
	)
	// 不使用 WithContext：一个分支失败不应取消其它分支。
	var group errgroup.Group
	group.SetLimit(p.limit)
	for _, task := range stage {
		task := task
		group.Go(func() error {
			if tErr := p.invokeSafe(ctx, task); tErr != nil {
				mu.Lock()
				if tErr.Critical && critical == nil {
					critical = tErr
				} else {
					warnings = append(warnings, tErr)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	for _, w := range warnings {
		logger.Warnf("[pipeline] %s %s", p.name, w.Error())
	}
	if critical != nil {
		return warnings, critical
	}
	return warnings, nil
}

func (p *Pipeline) invokeSafe(ctx context.Context, task Task) (out *TaskError) {
	runCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[pipeline] %s task %s panic: %v", p.name, task.Name, r)
			out = &TaskError{Task: task.Name, Stage: task.Stage, Critical: task.Critical, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := task.Run(runCtx); err != nil {
		return &TaskError{Task: task.Name, Stage: task.Stage, Critical: task.Critical, Err: err}
	}
	return nil
}
