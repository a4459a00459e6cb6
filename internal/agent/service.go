// Package agent 串联开盘（SOD）与日内两条决策流程：读取状态、并发收集
// 形态/图表/市场环境、拼装上下文、调用决策引擎、持久化并计算下次轮询。
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"botcore/internal/analysis/pattern"
	"botcore/internal/chartobs"
	"botcore/internal/decision"
	"botcore/internal/gateway/marketdata"
	"botcore/internal/logger"
	"botcore/internal/market"
	"botcore/internal/metrics"
	"botcore/internal/notecache"
	"botcore/internal/pipeline"
	"botcore/internal/prompt"
	"botcore/internal/scheduler"
	"botcore/internal/store"
	"botcore/internal/store/decisionlog"
)

const (
	WorkflowSOD      = "sod"
	WorkflowIntraday = "intraday"
)

const (
	branchPattern = "pattern"
	branchChart   = "chart"
	branchMarket  = "market"
)

// Metadata values for market_cache.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheError    = "error"
	CacheDisabled = "disabled"
)

var ErrMissingSymbol = errors.New("symbol is required")

// Request 是 EA 一次轮询的输入。
type Request struct {
	Symbol  string
	Session string
	Series  market.Series
	// CurrentPrice 覆盖主周期最后收盘价。
	CurrentPrice        *float64
	PrimaryTimeframe    string
	RequestedTimeframes []string
	// Positions 是 EA 自报的持仓，仅用于交叉验证。
	Positions      []store.Position
	AccountState   json.RawMessage
	SessionContext json.RawMessage
}

// ChartDescriber 对应 chartobs.Client。
type ChartDescriber interface {
	Describe(ctx context.Context, symbol string, timeframes []string, series market.Series) (chartobs.Observations, error)
}

// MarketFetcher 对应 marketdata.Service。
type MarketFetcher interface {
	Fetch(ctx context.Context, symbol string) (marketdata.Context, error)
}

type Decider interface {
	Decide(ctx context.Context, systemPrompt, bundle string, acct decision.AccountState) (decision.Decision, decision.Trace, error)
	Policy() decision.Policy
}

type PromptSource interface {
	MustGet(name string) string
}

type NoteCache interface {
	GetFresh(ctx context.Context, symbol string, noteType store.NoteType, ttl time.Duration, fetch notecache.FetchFunc) (store.Note, notecache.Status, error)
}

// AuditLog 记录每次决策；nil 表示不记录。
type AuditLog interface {
	Insert(ctx context.Context, rec decisionlog.Record) (int64, error)
}

type ServiceParams struct {
	Store   store.Store
	Engine  Decider
	Prompts PromptSource
	// Charts/Market 为 nil 时对应分支输出错误段落，不影响其它分支。
	Charts  ChartDescriber
	Market  MarketFetcher
	Notes   NoteCache
	Audit   AuditLog
	Metrics *metrics.Recorder

	// PatternOptions 按品种返回检测参数（pip 系数等）。
	PatternOptions func(symbol string) pattern.Options
	MarketTTL      time.Duration
	Bounds         scheduler.Bounds
	BranchTimeout  time.Duration
	Concurrency    int
	Now            func() time.Time
}

type Service struct {
	p   ServiceParams
	now func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("agent: store is required")
	}
	if p.Engine == nil {
		return nil, fmt.Errorf("agent: decision engine is required")
	}
	if p.Prompts == nil {
		return nil, fmt.Errorf("agent: prompt source is required")
	}
	if p.Notes == nil {
		p.Notes = notecache.New(p.Store, notecache.WithMetrics(p.Metrics), notecache.WithClock(p.Now))
	}
	if p.PatternOptions == nil {
		p.PatternOptions = func(string) pattern.Options { return pattern.Options{} }
	}
	if p.MarketTTL <= 0 {
		p.MarketTTL = notecache.DefaultTTL
	}
	if p.Bounds == nil {
		p.Bounds = scheduler.DefaultBounds()
	}
	if p.Concurrency <= 0 {
		p.Concurrency = pipeline.DefaultConcurrency
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{p: p, now: now}, nil
}

// RunSOD 执行开盘分析流程。任何内部失败都转为 ERROR 决策返回。
func (s *Service) RunSOD(ctx context.Context, req Request) decision.Decision {
	return s.run(ctx, WorkflowSOD, req)
}

// RunIntraday 执行日内流程。
func (s *Service) RunIntraday(ctx context.Context, req Request) decision.Decision {
	return s.run(ctx, WorkflowIntraday, req)
}

// Snapshot 根据请求的周期（或数据本身）判断走开盘还是日内流程。
func (s *Service) Snapshot(ctx context.Context, req Request) decision.Decision {
	if scheduler.IsStartOfDay(req.RequestedTimeframes, req.Series) {
		return s.RunSOD(ctx, req)
	}
	return s.RunIntraday(ctx, req)
}

func (s *Service) run(ctx context.Context, workflow string, req Request) (out decision.Decision) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.now()
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[agent] %s %s panic: %v", workflow, req.Symbol, r)
			out = s.failed(ctx, workflow, req.Symbol, now, fmt.Errorf("panic: %v", r), decision.Trace{})
		}
		s.p.Metrics.RecordDecision(workflow, out.Action)
	}()

	d, trace, err := s.execute(ctx, workflow, req, now)
	if err != nil {
		logger.Errorf("[agent] %s %s 失败: %v", workflow, req.Symbol, err)
		return s.failed(ctx, workflow, req.Symbol, now, err, trace)
	}
	return d
}

func (s *Service) failed(ctx context.Context, workflow, symbol string, now time.Time, cause error, trace decision.Trace) decision.Decision {
	d := decision.ErrorDecision(now, s.p.Engine.Policy().ErrorRetry, cause)
	d.SetMeta("workflow", workflow)
	if trace.ID != "" {
		d.SetMeta("trace_id", trace.ID)
	}
	if symbol != "" {
		s.audit(ctx, workflow, symbol, d, trace)
	}
	return d
}

// state 是顺序读取阶段的结果。
type state struct {
	dbPositions []store.Position
	levels      []store.Level
	setup       *store.Setup
	previousRun *store.Note
	sodNote     *store.Note
}

// branches 是并发阶段的结果；各分支只写自己的字段。
type branches struct {
	pattern     any
	charts      any
	market      any
	marketCache string
}

func (s *Service) execute(ctx context.Context, workflow string, req Request, now time.Time) (decision.Decision, decision.Trace, error) {
	if req.Symbol == "" {
		return decision.Decision{}, decision.Trace{}, ErrMissingSymbol
	}
	isSOD := workflow == WorkflowSOD
	st := s.loadState(ctx, workflow, req)

	timeframes := scheduler.SODTimeframes
	if !isSOD {
		timeframes = market.NormalizeTimeframes(req.RequestedTimeframes)
		if len(timeframes) == 0 {
			timeframes = scheduler.DefaultIntraday
		}
	}
	br := s.gather(ctx, workflow, req, st, timeframes)

	acct, err := decision.ParseAccountState(req.AccountState)
	if err != nil {
		logger.Warnf("[agent] %s account_state 解析失败，忽略: %v", req.Symbol, err)
		acct = decision.AccountState{}
	}
	if !acct.PositionsReported {
		acct.OpenPositions = encodePositions(st.dbPositions)
	}

	bundle := AssembleContext(BundleInput{
		Workflow:    workflow,
		Symbol:      req.Symbol,
		Session:     req.Session,
		Now:         now,
		Meta:        s.meta(req, st, timeframes),
		PreviousRun: st.previousRun,
		SODNote:     st.sodNote,
		DBPositions: st.dbPositions,
		EAPositions: req.Positions,
		Pattern:     br.pattern,
		Charts:      br.charts,
		Market:      br.market,
	})

	promptName := prompt.NameIntraday
	if isSOD {
		promptName = prompt.NameSOD
	}
	d, trace, err := s.p.Engine.Decide(ctx, s.p.Prompts.MustGet(promptName), bundle, acct)
	if err != nil {
		return decision.Decision{}, trace, err
	}

	if trace.ParseError == "" {
		d = scheduler.ClampNextRun(d, now, s.p.Bounds)
	}
	d.SetRequestedTimeframes(scheduler.NextTimeframes(d, isSOD))

	s.persist(ctx, workflow, req, st, d, now)

	d.SetMeta("workflow", workflow)
	d.SetMeta("trace_id", trace.ID)
	if isSOD {
		d.SetMeta("symbols_analyzed", []string{req.Symbol})
		d.SetMeta("previous_context_used", st.previousRun != nil)
	} else {
		d.SetMeta("market_cache", br.marketCache)
		d.SetMeta("notes_used", notesUsed(st))
	}
	s.audit(ctx, workflow, req.Symbol, d, trace)
	logger.Infof("[agent] %s %s -> %s next=%s tfs=%v", workflow, req.Symbol, d.Action, d.NextRunAtUTC, d.NextRequestedTimeframes)
	return d, trace, nil
}

// loadState 顺序读取持仓、笔记、锁定价位和活跃 setup；读取失败只记日志。
func (s *Service) loadState(ctx context.Context, workflow string, req Request) state {
	var st state
	var err error
	db := s.p.Store
	if st.dbPositions, err = db.GetPositions(ctx, req.Symbol); err != nil {
		logger.Warnf("[agent] %s 读取持仓失败: %v", req.Symbol, err)
	}
	if st.previousRun, err = db.GetNote(ctx, req.Symbol, store.NoteLastRun); err != nil {
		logger.Warnf("[agent] %s 读取 last_run_note 失败: %v", req.Symbol, err)
	}
	if workflow == WorkflowIntraday {
		if st.sodNote, err = db.GetNote(ctx, req.Symbol, store.NoteSOD); err != nil {
			logger.Warnf("[agent] %s 读取 sod_note 失败: %v", req.Symbol, err)
		}
	}
	if st.levels, err = db.GetLevels(ctx, req.Symbol, req.Session); err != nil {
		logger.Warnf("[agent] %s 读取锁定价位失败: %v", req.Symbol, err)
	}
	if st.setup, err = db.GetActiveSetup(ctx, req.Symbol); err != nil {
		logger.Warnf("[agent] %s 读取 setup 失败: %v", req.Symbol, err)
	}
	return st
}

// gather 并发运行三个分支；单个分支失败降级为 {"error": ...}。
func (s *Service) gather(ctx context.Context, workflow string, req Request, st state, timeframes []string) branches {
	var br branches
	series := req.Series.Subset(timeframes)
	if len(series) == 0 {
		series = req.Series
	}
	opts := s.p.PatternOptions(req.Symbol)

	tasks := []pipeline.Task{
		{
			Name:    branchPattern,
			Timeout: s.p.BranchTimeout,
			Run: func(ctx context.Context) error {
				br.pattern = pattern.Detect(pattern.Input{
					Series:           series,
					Levels:           st.levels,
					CurrentPrice:     req.CurrentPrice,
					PrimaryTimeframe: req.PrimaryTimeframe,
				}, opts)
				return nil
			},
		},
		{
			Name:    branchChart,
			Timeout: s.p.BranchTimeout,
			Run: func(ctx context.Context) error {
				if s.p.Charts == nil {
					return fmt.Errorf("chart observation not configured")
				}
				obs, err := s.p.Charts.Describe(ctx, req.Symbol, timeframes, req.Series)
				if err != nil {
					return err
				}
				br.charts = obs
				return nil
			},
		},
		{
			Name:    branchMarket,
			Timeout: s.p.BranchTimeout,
			Run: func(ctx context.Context) error {
				payload, status, err := s.marketContext(ctx, workflow, req.Symbol)
				br.marketCache = status
				if err != nil {
					return err
				}
				br.market = payload
				return nil
			},
		},
	}
	warnings, _ := pipeline.New(workflow+":"+req.Symbol, s.p.Concurrency, tasks...).Run(ctx)
	for _, w := range warnings {
		s.p.Metrics.RecordBranchFailure(w.Task)
		failure := map[string]any{"error": w.Err.Error()}
		switch w.Task {
		case branchPattern:
			br.pattern = failure
		case branchChart:
			br.charts = failure
		case branchMarket:
			br.market = failure
			if br.marketCache == "" || br.marketCache == CacheMiss {
				br.marketCache = CacheError
			}
		}
	}
	return br
}

// marketContext：开盘流程总是刷新并保存；日内流程经过 NoteCache。
func (s *Service) marketContext(ctx context.Context, workflow, symbol string) (json.RawMessage, string, error) {
	if s.p.Market == nil {
		return nil, CacheDisabled, fmt.Errorf("market context not configured")
	}
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		mc, err := s.p.Market.Fetch(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mc)
	}
	if workflow == WorkflowSOD {
		payload, err := fetch(ctx)
		if err != nil {
			return nil, CacheError, err
		}
		note := store.NewNote(symbol, store.NoteMarketData, payload, s.now())
		if err := s.p.Store.SaveNote(ctx, note); err != nil {
			logger.Warnf("[agent] %s 保存 market_data_note 失败: %v", symbol, err)
		}
		return payload, CacheMiss, nil
	}
	note, status, err := s.p.Notes.GetFresh(ctx, symbol, store.NoteMarketData, s.p.MarketTTL, fetch)
	if err != nil {
		return nil, CacheError, err
	}
	return note.Payload, string(status), nil
}

func (s *Service) meta(req Request, st state, timeframes []string) map[string]any {
	meta := map[string]any{"timeframes": timeframes}
	if len(req.AccountState) > 0 && json.Valid(req.AccountState) {
		meta["account_state"] = req.AccountState
	}
	if len(req.SessionContext) > 0 && json.Valid(req.SessionContext) {
		meta["session_context"] = req.SessionContext
	}
	if len(st.levels) > 0 {
		meta["locked_levels"] = st.levels
	}
	if st.setup != nil {
		meta["active_setup"] = st.setup
	}
	return meta
}

// persist 尽力保存价位、setup 与笔记；失败只记日志，不影响返回。
func (s *Service) persist(ctx context.Context, workflow string, req Request, st state, d decision.Decision, now time.Time) {
	db := s.p.Store
	if levels := decision.ToStore(d.LevelsUpdate, req.Symbol, req.Session, now); len(levels) > 0 {
		if err := db.SaveLevels(ctx, req.Symbol, req.Session, levels); err != nil {
			logger.Warnf("[agent] %s 保存锁定价位失败: %v", req.Symbol, err)
		}
	}
	if id := d.SetupIDText(); id != "" {
		setup := store.Setup{
			SetupID:   id,
			Symbol:    req.Symbol,
			Session:   req.Session,
			Phase:     d.StateUpdate.Phase(),
			UpdatedAt: now.UTC(),
		}
		if st.setup != nil && st.setup.SetupID == id && setup.Phase == "" {
			setup.Phase = st.setup.Phase
		}
		if len(d.StateUpdate) > 0 {
			if raw, err := json.Marshal(d.StateUpdate); err == nil {
				setup.StateData = raw
			}
		}
		if err := db.SaveSetup(ctx, setup); err != nil {
			logger.Warnf("[agent] %s 保存 setup %s 失败: %v", req.Symbol, id, err)
		}
	}

	payload, err := json.Marshal(map[string]any{
		"workflow":  workflow,
		"timestamp": now.UTC().Format(time.RFC3339),
		"decision":  d,
	})
	if err != nil {
		logger.Warnf("[agent] %s 编码笔记失败: %v", req.Symbol, err)
		return
	}
	noteType := store.NoteLastRun
	if workflow == WorkflowSOD {
		noteType = store.NoteSOD
	}
	if err := db.SaveNote(ctx, store.NewNote(req.Symbol, noteType, payload, now)); err != nil {
		logger.Warnf("[agent] %s 保存 %s 失败: %v", req.Symbol, noteType, err)
	}
	if workflow == WorkflowSOD {
		// 新的一天从干净的 last_run_note 开始
		if err := db.ClearNotes(ctx, req.Symbol, []store.NoteType{store.NoteLastRun}); err != nil {
			logger.Warnf("[agent] %s 清理 last_run_note 失败: %v", req.Symbol, err)
		}
	}
}

func (s *Service) audit(ctx context.Context, workflow, symbol string, d decision.Decision, trace decision.Trace) {
	if s.p.Audit == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		raw = nil
	}
	rec := decisionlog.Record{
		TraceID:    trace.ID,
		Symbol:     symbol,
		Workflow:   workflow,
		Action:     d.Action,
		Model:      trace.Model,
		RawOutput:  trace.RawOutput,
		ParseError: trace.ParseError,
		Error:      d.ErrorText(),
		Decision:   raw,
		LatencyMS:  trace.Latency.Milliseconds(),
		CreatedAt:  s.now(),
	}
	if _, err := s.p.Audit.Insert(ctx, rec); err != nil {
		logger.Warnf("[agent] %s 写入决策日志失败: %v", symbol, err)
	}
}

func notesUsed(st state) []string {
	out := []string{}
	if st.sodNote != nil {
		out = append(out, string(store.NoteSOD))
	}
	if st.previousRun != nil {
		out = append(out, string(store.NoteLastRun))
	}
	return out
}

func encodePositions(positions []store.Position) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(positions))
	for _, p := range positions {
		raw, err := json.Marshal(p)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}
