package apihttp

import (
	"encoding/json"

	"botcore/internal/store"
)

// Endpoints 在 404 响应中列出。
var Endpoints = []string{
	"/api/health",
	"/api/trading/sod",
	"/api/trading/intraday",
	"/api/trading/snapshot",
	"/api/trading/execute",
	"/api/trading/status",
	"/api/trading/store_positions",
	"/api/trading/decisions",
	"/metrics",
}

// sodRequest 只声明固定字段；K 线数组按 *_DATA 键另行解析。
type sodRequest struct {
	Symbol    string           `json:"symbol" binding:"required"`
	Session   string           `json:"session"`
	Positions []store.Position `json:"positions"`
}

type intradayRequest struct {
	Symbol              string           `json:"symbol" binding:"required"`
	Session             string           `json:"session"`
	Positions           []store.Position `json:"positions"`
	AccountState        json.RawMessage  `json:"account_state"`
	RequestedTimeframes []string         `json:"requested_timeframes"`
}

type snapshotRequest struct {
	Symbol              string                     `json:"symbol" binding:"required"`
	OHLCData            map[string]json.RawMessage `json:"ohlc_data" binding:"required"`
	AccountState        json.RawMessage            `json:"account_state" binding:"required"`
	SessionContext      json.RawMessage            `json:"session_context"`
	RequestedTimeframes []string                   `json:"requested_timeframes"`
}

type executeRequest struct {
	SetupID       string   `json:"setup_id"`
	Symbol        string   `json:"symbol" binding:"required"`
	OrderType     string   `json:"order_type"`
	Price         *float64 `json:"price"`
	StopLoss      *float64 `json:"stop_loss"`
	TakeProfit    *float64 `json:"take_profit"`
	LotSize       *float64 `json:"lot_size" binding:"omitempty,gt=0"`
	ExecutionTime string   `json:"execution_time"`
}

type storePositionsRequest struct {
	Symbol    string           `json:"symbol" binding:"required"`
	Positions []store.Position `json:"positions"`
}
