package pattern

import (
	"botcore/internal/store"

	"github.com/shopspring/decimal"
)

// LevelInteractions 计算当前价与每个锁定价位的 pip 距离：< near 为 near，
// < approaching 为 approaching，其余不输出。
func LevelInteractions(price float64, levels []store.Level, opts Options) []LevelInteraction {
	opts = opts.withDefaults()
	out := []LevelInteraction{}
	if len(levels) == 0 {
		return out
	}
	current := decimal.NewFromFloat(price)
	scale := decimal.NewFromFloat(opts.PipScale)
	near := decimal.NewFromFloat(opts.NearPips)
	approaching := decimal.NewFromFloat(opts.ApproachingPips)
	for _, lvl := range levels {
		if lvl.InvalidatedAt != nil {
			continue
		}
		dist := current.Sub(decimal.NewFromFloat(lvl.Price)).Abs().Mul(scale)
		var status InteractionStatus
		switch {
		case dist.LessThan(near):
			status = StatusNear
		case dist.LessThan(approaching):
			status = StatusApproaching
		default:
			continue
		}
		pips, _ := dist.Round(3).Float64()
		out = append(out, LevelInteraction{
			Timeframe:    lvl.Timeframe,
			LevelType:    lvl.Type,
			LevelPrice:   lvl.Price,
			DistancePips: pips,
			Status:       status,
		})
	}
	return out
}
