package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	klinePageLimit    = 1000
	wsReconnectDelay  = 5 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingPeriod      = wsPongWait * 9 / 10
	fetchPauseBetween = 200 * time.Millisecond // 避免过于频繁的请求
)

// BinanceSource 基于币安公共接口的行情源：
// REST 拉取历史K线，WebSocket 订阅逐笔成交价。
type BinanceSource struct {
	client *binance.Client
	wsURL  string
	log    *zap.SugaredLogger
}

func NewBinanceSource(apiURL, wsURL string) *BinanceSource {
	client := binance.NewClient("", "") // 公共接口不需要API Key
	if apiURL != "" {
		client.BaseURL = apiURL
	}
	if wsURL == "" {
		wsURL = "wss://stream.binance.com:9443"
	}
	return &BinanceSource{
		client: client,
		wsURL:  wsURL,
		log:    logger.Named("feed.binance"),
	}
}

// FetchCandles 分页拉取指定区间的K线，单页上限1000条
func (s *BinanceSource) FetchCandles(symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	var out []models.Candle
	for t := start; t.Before(end); {
		klines, err := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(t.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(klinePageLimit).
			Do(context.Background())
		if err != nil {
			return nil, fmt.Errorf("拉取K线失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			c, err := parseKline(k)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		if len(klines) < klinePageLimit {
			break
		}
		time.Sleep(fetchPauseBetween)
	}
	s.log.Infof("拉取K线完成: %s %s 共 %d 条", symbol, interval, len(out))
	return out, nil
}

func parseKline(k *binance.Kline) (models.Candle, error) {
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closeP, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			return models.Candle{}, fmt.Errorf("解析K线字段失败: %w", err)
		}
	}
	return models.Candle{
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closeP,
		Volume:   vol,
	}, nil
}

// GetCurrentPrice 询价一次最新成交价
func (s *BinanceSource) GetCurrentPrice(symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, fmt.Errorf("询价失败: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("交易对 %s 没有返回价格", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// SubscribePrice 订阅逐笔成交流，连接断开后自动重连直到退订。
// 回调在订阅自己的goroutine里执行，调用方负责自己的并发控制。
func (s *BinanceSource) SubscribePrice(symbol string, callback func(price float64)) (func(), error) {
	stop := make(chan struct{})
	go s.streamLoop(symbol, callback, stop)

	var once bool
	return func() {
		if !once {
			once = true
			close(stop)
		}
	}, nil
}

// streamLoop 是订阅的守护循环，负责连接、读取与重连
func (s *BinanceSource) streamLoop(symbol string, callback func(float64), stop chan struct{}) {
	url := fmt.Sprintf("%s/ws/%s@aggTrade", s.wsURL, strings.ToLower(symbol))
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			s.log.Warnf("WebSocket连接失败: %v, %s 后重试", err, wsReconnectDelay)
			select {
			case <-stop:
				return
			case <-time.After(wsReconnectDelay):
			}
			continue
		}
		s.log.Infof("WebSocket已连接: %s", symbol)

		if err := s.readMessages(conn, callback, stop); err != nil {
			s.log.Warnf("WebSocket读取中断: %v, 准备重连", err)
		}
		conn.Close()

		select {
		case <-stop:
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

// readMessages 在单条连接上读消息并维持心跳，连接损坏时返回错误
func (s *BinanceSource) readMessages(conn *websocket.Conn, callback func(float64), stop chan struct{}) error {
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("读取消息失败: %w", err)
			}
			var trade struct {
				Price json.Number `json:"p"`
			}
			if err := json.Unmarshal(message, &trade); err != nil {
				s.log.Debugf("解析价格消息失败: %v", err)
				continue
			}
			price, err := trade.Price.Float64()
			if err != nil {
				continue
			}
			callback(price)
		}
	}
}
