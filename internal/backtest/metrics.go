package backtest

import (
	"math"
	"time"

	"quant-agent-go/internal/models"
)

// profitFactorSentinel 没有亏损交易时盈亏比没有定义，用大哨兵值代替
const profitFactorSentinel = 999.0

const annualTradingDays = 252

// maxDrawdownPercent 计算权益曲线相对历史峰值的最大回撤百分比
func maxDrawdownPercent(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// profitFactor 返回总盈利与总亏损的比值。
// 没有亏损交易时返回哨兵值而不是除零。
func profitFactor(trades []models.TradeRecord) float64 {
	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.PnL > 0 {
			grossWin += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	if grossLoss == 0 {
		if grossWin > 0 {
			return profitFactorSentinel
		}
		return 0
	}
	return grossWin / grossLoss
}

// sharpeRatio 在交易日粒度上计算年化夏普比率。
// 按 UTC 日期对权益曲线取日终值，收益序列标准差为零时返回 0。
func sharpeRatio(times []time.Time, equity []float64) float64 {
	if len(times) != len(equity) || len(equity) == 0 {
		return 0
	}

	var daily []float64
	curDay := times[0].UTC().Format("2006-01-02")
	last := equity[0]
	for i := 1; i < len(equity); i++ {
		d := times[i].UTC().Format("2006-01-02")
		if d != curDay {
			daily = append(daily, last)
			curDay = d
		}
		last = equity[i]
	}
	daily = append(daily, last)

	if len(daily) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		if daily[i-1] == 0 {
			return 0
		}
		returns = append(returns, (daily[i]-daily[i-1])/daily[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean * math.Sqrt(annualTradingDays) / stdev
}
