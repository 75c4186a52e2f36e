package feed

import (
	"time"

	"quant-agent-go/internal/models"
)

// Source 是行情数据的统一入口：历史K线、实时价格订阅与即时询价。
// 实现方负责自己的超时与重连，核心逻辑不感知传输细节。
type Source interface {
	FetchCandles(symbol string, start, end time.Time, interval string) ([]models.Candle, error)
	SubscribePrice(symbol string, callback func(price float64)) (unsubscribe func(), err error)
	GetCurrentPrice(symbol string) (float64, error)
}
