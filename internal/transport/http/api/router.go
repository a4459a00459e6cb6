package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"botcore/internal/agent"
	"botcore/internal/logger"
	"botcore/internal/market"
	"botcore/internal/scheduler"
	"botcore/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EventExecution 是 EA 成交确认对应的交易事件类型。
const EventExecution = "EXECUTION"

var sodDataKeys = map[string]string{
	market.H1: "1h_DATA",
	market.H4: "4h_DATA",
	market.D1: "1D_DATA",
	market.W1: "1W_DATA",
}

// Router 把 EA 的请求转成决策流程调用。
type Router struct {
	cfg ServerConfig
}

func NewRouter(cfg ServerConfig) *Router {
	return &Router{cfg: cfg}
}

func (r *Router) Register(router *gin.Engine) {
	router.GET("/api/health", r.handleHealth)
	group := router.Group("/api/trading")
	group.POST("/sod", r.handleSOD)
	group.POST("/intraday", r.handleIntraday)
	group.POST("/snapshot", r.handleSnapshot)
	group.POST("/execute", r.handleExecute)
	group.POST("/store_positions", r.handleStorePositions)
	group.GET("/status", r.handleStatus)
	group.GET("/decisions", r.handleDecisions)
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "BotCore API", "version": r.cfg.Version})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational", "version": r.cfg.Version})
}

func (r *Router) handleSOD(c *gin.Context) {
	var req sodRequest
	fields, ok := bindPayload(c, &req)
	if !ok {
		return
	}
	series, err := market.SeriesFromPayload(fields)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	for _, tf := range scheduler.SODTimeframes {
		if len(series[tf]) == 0 {
			badRequest(c, "Missing required timeframe data: 1h_DATA, 4h_DATA, 1D_DATA, 1W_DATA")
			return
		}
	}
	logger.Infof("[api] sod symbol=%s %s=%d %s=%d %s=%d %s=%d positions=%d", strings.ToUpper(req.Symbol),
		sodDataKeys[market.H1], len(series[market.H1]), sodDataKeys[market.H4], len(series[market.H4]),
		sodDataKeys[market.D1], len(series[market.D1]), sodDataKeys[market.W1], len(series[market.W1]), len(req.Positions))

	d := r.cfg.Decisions.RunSOD(c.Request.Context(), agent.Request{
		Symbol:              req.Symbol,
		Session:             req.Session,
		Series:              series.Subset(scheduler.SODTimeframes),
		Positions:           req.Positions,
		RequestedTimeframes: scheduler.SODTimeframes,
	})
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleIntraday(c *gin.Context) {
	var req intradayRequest
	fields, ok := bindPayload(c, &req)
	if !ok {
		return
	}
	series, err := market.SeriesFromPayload(fields)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(series) == 0 {
		badRequest(c, "No OHLC data provided. Include at least one timeframe (e.g., H1_DATA, M15_DATA)")
		return
	}
	requested := market.NormalizeTimeframes(req.RequestedTimeframes)
	if len(requested) == 0 {
		requested = series.Timeframes()
	}
	logger.Infof("[api] intraday symbol=%s timeframes=%v positions=%d", strings.ToUpper(req.Symbol), series.Timeframes(), len(req.Positions))

	d := r.cfg.Decisions.RunIntraday(c.Request.Context(), agent.Request{
		Symbol:              req.Symbol,
		Session:             req.Session,
		Series:              series,
		Positions:           req.Positions,
		AccountState:        req.AccountState,
		RequestedTimeframes: requested,
	})
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleSnapshot(c *gin.Context) {
	var req snapshotRequest
	if _, ok := bindPayload(c, &req); !ok {
		return
	}
	series, err := market.SeriesFromMap(req.OHLCData)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	areq := agent.Request{
		Symbol:              req.Symbol,
		Series:              series,
		AccountState:        req.AccountState,
		SessionContext:      req.SessionContext,
		RequestedTimeframes: req.RequestedTimeframes,
	}
	if raw, ok := req.OHLCData["current_price"]; ok {
		var price float64
		if err := json.Unmarshal(raw, &price); err == nil && price > 0 {
			areq.CurrentPrice = &price
		}
	}
	if raw, ok := req.OHLCData["primary_timeframe"]; ok {
		var tf string
		if err := json.Unmarshal(raw, &tf); err == nil {
			areq.PrimaryTimeframe = market.NormalizeTimeframe(tf)
		}
	}
	// session_context 可以是 "London" 这样的字符串
	var session string
	if err := json.Unmarshal(req.SessionContext, &session); err == nil {
		areq.Session = strings.TrimSpace(session)
	}
	logger.Infof("[api] snapshot symbol=%s timeframes=%v requested=%v", strings.ToUpper(req.Symbol), series.Timeframes(), req.RequestedTimeframes)

	d := r.cfg.Decisions.Snapshot(c.Request.Context(), areq)
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleExecute(c *gin.Context) {
	var req executeRequest
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := decodeAndValidate(body, &req); err != nil {
		badRequest(c, err.Error())
		return
	}
	event := store.TradeEvent{
		ID:        uuid.NewString(),
		SetupID:   strings.TrimSpace(req.SetupID),
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		EventType: EventExecution,
		EventData: json.RawMessage(body),
		CreatedAt: r.cfg.Now().UTC(),
	}
	if err := r.cfg.Trades.SaveTradeEvent(c.Request.Context(), event); err != nil {
		logger.Errorf("[api] execute symbol=%s setup=%s 保存失败: %v", event.Symbol, event.SetupID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to log execution: %v", err)})
		return
	}
	logger.Infof("[api] execute symbol=%s setup=%s type=%s", event.Symbol, event.SetupID, req.OrderType)
	c.JSON(http.StatusOK, gin.H{"status": "executed", "setup_id": req.SetupID, "event_id": event.ID})
}

func (r *Router) handleStorePositions(c *gin.Context) {
	var req storePositionsRequest
	if _, ok := bindPayload(c, &req); !ok {
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := r.cfg.Trades.ReplacePositions(c.Request.Context(), symbol, req.Positions); err != nil {
		logger.Errorf("[api] store_positions symbol=%s 失败: %v", symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store positions"})
		return
	}
	logger.Infof("[api] store_positions symbol=%s count=%d", symbol, len(req.Positions))
	c.JSON(http.StatusOK, gin.H{"status": "success", "positions_stored": len(req.Positions), "symbol": symbol})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.cfg.Logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	recs, err := r.cfg.Logs.Recent(c.Request.Context(), symbol, limit)
	if err != nil {
		logger.Errorf("[api] decisions symbol=%s 查询失败: %v", symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "decisions": recs})
}

// bindPayload 读取请求体，解码并校验固定字段，同时返回原始字段表供 *_DATA 解析。
func bindPayload(c *gin.Context, dst any) (map[string]json.RawMessage, bool) {
	body, ok := readBody(c)
	if !ok {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		badRequest(c, "No JSON data provided")
		return nil, false
	}
	if err := decodeAndValidate(body, dst); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return fields, true
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		badRequest(c, err.Error())
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		badRequest(c, "No JSON data provided")
		return nil, false
	}
	return body, true
}

func decodeAndValidate(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if binding.Validator == nil {
		return nil
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		var missing, invalid []string
		for _, fe := range verrs {
			name := jsonFieldName(fe.Field())
			if fe.Tag() == "required" {
				missing = append(missing, name)
			} else {
				invalid = append(invalid, fmt.Sprintf("%s (%s=%s)", name, fe.Tag(), fe.Param()))
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
		}
		return fmt.Errorf("Invalid fields: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// jsonFieldName 把 Go 字段名转为请求中的 snake_case 键名（OHLCData -> ohlc_data）。
func jsonFieldName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func badRequest(c *gin.Context, msg string) {
	logger.Warnf("[api] %s %s 400: %s", c.Request.Method, c.FullPath(), msg)
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
