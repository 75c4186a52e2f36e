package models

// Clone 深拷贝策略配置，调用方可以放心修改而不污染原件
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	if c.Grid != nil {
		g := *c.Grid
		out.Grid = &g
	}
	if c.Momentum != nil {
		m := *c.Momentum
		out.Momentum = &m
	}
	if c.Scalping != nil {
		s := *c.Scalping
		out.Scalping = &s
	}
	if c.FundingArb != nil {
		f := *c.FundingArb
		out.FundingArb = &f
	}
	if len(c.Symbols) > 0 {
		out.Symbols = append([]string(nil), c.Symbols...)
	}
	return out
}

// TunableParams 抽取当前变体的可调参数表
func (c StrategyConfig) TunableParams() map[string]float64 {
	out := make(map[string]float64)
	switch c.Type {
	case StrategyGridBot:
		if g := c.Grid; g != nil {
			out["upper_price"] = g.UpperPrice
			out["lower_price"] = g.LowerPrice
			out["grid_count"] = float64(g.GridCount)
			out["stop_loss_percent"] = g.StopLossPercent
		}
	case StrategyMomentum:
		if m := c.Momentum; m != nil {
			out["take_profit_percent"] = m.TakeProfitPercent
			out["stop_loss_percent"] = m.StopLossPercent
			out["trailing_stop_percent"] = m.TrailingStopPercent
			out["position_size_percent"] = m.PositionSizePercent
		}
	case StrategyScalping:
		if s := c.Scalping; s != nil {
			out["rsi_low"] = s.RSILow
			out["rsi_high"] = s.RSIHigh
			out["take_profit_percent"] = s.TakeProfitPercent
			out["stop_loss_percent"] = s.StopLossPercent
			out["max_daily_trades"] = float64(s.MaxDailyTrades)
			out["position_size_percent"] = s.PositionSizePercent
		}
	case StrategyFundingArb:
		if f := c.FundingArb; f != nil {
			out["min_funding_rate"] = f.MinFundingRate
			out["min_annualized_apy"] = f.MinAnnualizedAPY
			out["max_drawdown_percent"] = f.MaxDrawdownPercent
			out["min_holding_periods"] = float64(f.MinHoldingPeriods)
			out["position_size_percent"] = f.PositionSizePercent
		}
	}
	return out
}

// ApplyParam 把单个参数写回对应变体的字段，未知参数名被忽略。
// 调用方在整批参数套用完后需要自行 Validate。
func (c *StrategyConfig) ApplyParam(name string, v float64) {
	switch c.Type {
	case StrategyGridBot:
		if g := c.Grid; g != nil {
			switch name {
			case "upper_price":
				g.UpperPrice = v
			case "lower_price":
				g.LowerPrice = v
			case "grid_count":
				g.GridCount = int(v)
			case "stop_loss_percent":
				g.StopLossPercent = v
			}
		}
	case StrategyMomentum:
		if m := c.Momentum; m != nil {
			switch name {
			case "take_profit_percent":
				m.TakeProfitPercent = v
			case "stop_loss_percent":
				m.StopLossPercent = v
			case "trailing_stop_percent":
				m.TrailingStopPercent = v
			case "position_size_percent":
				m.PositionSizePercent = v
			}
		}
	case StrategyScalping:
		if s := c.Scalping; s != nil {
			switch name {
			case "rsi_low":
				s.RSILow = v
			case "rsi_high":
				s.RSIHigh = v
			case "take_profit_percent":
				s.TakeProfitPercent = v
			case "stop_loss_percent":
				s.StopLossPercent = v
			case "max_daily_trades":
				s.MaxDailyTrades = int(v)
			case "position_size_percent":
				s.PositionSizePercent = v
			}
		}
	case StrategyFundingArb:
		if f := c.FundingArb; f != nil {
			switch name {
			case "min_funding_rate":
				f.MinFundingRate = v
			case "min_annualized_apy":
				f.MinAnnualizedAPY = v
			case "max_drawdown_percent":
				f.MaxDrawdownPercent = v
			case "min_holding_periods":
				f.MinHoldingPeriods = int(v)
			case "position_size_percent":
				f.PositionSizePercent = v
			}
		}
	}
}
