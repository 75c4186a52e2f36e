package indicator

import (
	"fmt"

	"quant-agent-go/internal/models"

	"github.com/markcheno/go-talib"
)

// MinLookback 是计算全量指标所需的最少K线数量。
// EMA 慢线(50)与 ADX(14) 的预热期决定了这个下限。
const MinLookback = 60

const (
	rsiPeriod   = 14
	bbPeriod    = 20
	adxPeriod   = 14
	emaFast     = 9
	emaMid      = 21
	emaSlow     = 50
	stochK      = 14
	stochSmooth = 3
)

// Snapshot 保存一次指标计算的最新值（以及判断交叉所需的前一个值）。
type Snapshot struct {
	Close float64

	RSI float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	EMAFast float64
	EMAMid  float64
	EMASlow float64

	MACD           float64
	MACDSignal     float64
	PrevMACD       float64
	PrevMACDSignal float64

	StochK     float64
	StochD     float64
	PrevStochK float64
	PrevStochD float64
}

// Compute 基于K线窗口计算指标快照。
// 数据不足以完成预热时返回错误，调用方应跳过该tick而不是中断整个回测。
func Compute(candles []models.Candle) (*Snapshot, error) {
	if len(candles) < MinLookback {
		return nil, fmt.Errorf("K线数量不足: 需要 %d 根, 实际 %d 根", MinLookback, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	upper, middle, lower := talib.BBands(closes, bbPeriod, 2, 2, talib.SMA)
	adx := talib.Adx(highs, lows, closes, adxPeriod)
	plusDI := talib.PlusDI(highs, lows, closes, adxPeriod)
	minusDI := talib.MinusDI(highs, lows, closes, adxPeriod)
	fast := talib.Ema(closes, emaFast)
	mid := talib.Ema(closes, emaMid)
	slow := talib.Ema(closes, emaSlow)
	macd, macdSignal, _ := talib.Macd(closes, 12, 26, 9)
	k, d := talib.Stoch(highs, lows, closes, stochK, stochSmooth, talib.SMA, stochSmooth, talib.SMA)

	n := len(closes) - 1
	snap := &Snapshot{
		Close:          closes[n],
		RSI:            rsi[n],
		BBUpper:        upper[n],
		BBMiddle:       middle[n],
		BBLower:        lower[n],
		ADX:            adx[n],
		PlusDI:         plusDI[n],
		MinusDI:        minusDI[n],
		EMAFast:        fast[n],
		EMAMid:         mid[n],
		EMASlow:        slow[n],
		MACD:           macd[n],
		MACDSignal:     macdSignal[n],
		PrevMACD:       macd[n-1],
		PrevMACDSignal: macdSignal[n-1],
		StochK:         k[n],
		StochD:         d[n],
		PrevStochK:     k[n-1],
		PrevStochD:     d[n-1],
	}
	return snap, nil
}

// MACDCrossUp 判断 MACD 是否上穿信号线
func (s *Snapshot) MACDCrossUp() bool {
	return s.PrevMACD <= s.PrevMACDSignal && s.MACD > s.MACDSignal
}

// MACDCrossDown 判断 MACD 是否下穿信号线
func (s *Snapshot) MACDCrossDown() bool {
	return s.PrevMACD >= s.PrevMACDSignal && s.MACD < s.MACDSignal
}

// StochCrossUp 判断 %K 是否上穿 %D
func (s *Snapshot) StochCrossUp() bool {
	return s.PrevStochK <= s.PrevStochD && s.StochK > s.StochD
}

// StochCrossDown 判断 %K 是否下穿 %D
func (s *Snapshot) StochCrossDown() bool {
	return s.PrevStochK >= s.PrevStochD && s.StochK < s.StochD
}
