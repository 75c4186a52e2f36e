package feed

import (
	"math"
	"time"

	"quant-agent-go/internal/models"
)

// SyntheticCandles 生成确定性的合成K线序列。
// 只用于回测与优化路径的数据回退，实盘路径绝不使用合成数据。
// 同样的入参总是产出同样的序列。
func SyntheticCandles(start time.Time, n int, interval time.Duration, basePrice float64) []models.Candle {
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		// 慢速正弦叠加快速正弦，制造跨越多个价位的波动
		price := basePrice * (1 + 0.05*math.Sin(x/480) + 0.01*math.Sin(x/37))
		next := basePrice * (1 + 0.05*math.Sin((x+1)/480) + 0.01*math.Sin((x+1)/37))
		high := math.Max(price, next) * 1.001
		low := math.Min(price, next) * 0.999
		out = append(out, models.Candle{
			OpenTime: start.Add(time.Duration(i) * interval),
			Open:     price,
			High:     high,
			Low:      low,
			Close:    next,
			Volume:   50 + 10*math.Abs(math.Sin(x/93)),
		})
	}
	return out
}
