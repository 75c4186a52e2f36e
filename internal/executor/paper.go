package executor

import (
	"sync"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fill 是模拟执行器记录的一笔成交
type Fill struct {
	OrderID string      `json:"order_id"`
	Symbol  string      `json:"symbol"`
	Side    models.Side `json:"side"`
	Price   float64     `json:"price"`
	Size    float64     `json:"size"`
	Reason  string      `json:"reason"`
	Time    time.Time   `json:"time"`
}

// PriceFunc 在请求未带价格时用来询当前价
type PriceFunc func(symbol string) (float64, error)

// PaperExecutor 模拟执行器：只记录成交，不触达任何真实交易所。
// 数量按步长向下取整，和真实下单一致。
type PaperExecutor struct {
	priceFn  PriceFunc
	stepSize decimal.Decimal
	log      *zap.SugaredLogger

	mu    sync.Mutex
	fills []Fill
}

// NewPaperExecutor 创建模拟执行器。stepSize <= 0 时不做数量取整。
func NewPaperExecutor(priceFn PriceFunc, stepSize float64) *PaperExecutor {
	return &PaperExecutor{
		priceFn:  priceFn,
		stepSize: decimal.NewFromFloat(stepSize),
		log:      logger.Named("executor.paper"),
	}
}

func (p *PaperExecutor) ExecuteOrder(req models.ExecutionRequest) models.ExecutionResult {
	return p.record(req, "执行订单")
}

func (p *PaperExecutor) ClosePosition(req models.ExecutionRequest) models.ExecutionResult {
	return p.record(req, "平仓")
}

func (p *PaperExecutor) record(req models.ExecutionRequest, action string) models.ExecutionResult {
	if req.Symbol == "" || req.Size <= 0 {
		return models.ExecutionResult{Success: false, Error: "非法的执行请求: 缺少交易对或数量"}
	}

	price := req.Price
	if price <= 0 {
		if p.priceFn == nil {
			return models.ExecutionResult{Success: false, Error: "请求未带价格且没有询价来源"}
		}
		var err error
		price, err = p.priceFn(req.Symbol)
		if err != nil {
			return models.ExecutionResult{Success: false, Error: err.Error()}
		}
	}

	size := p.roundSize(req.Size)
	if size <= 0 {
		return models.ExecutionResult{Success: false, Error: "数量按步长取整后为零"}
	}

	fill := Fill{
		OrderID: uuid.NewString(),
		Symbol:  req.Symbol,
		Side:    req.Side,
		Price:   price,
		Size:    size,
		Reason:  req.Reason,
		Time:    time.Now(),
	}
	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	p.log.Infof("%s(模拟): %s %s %.8f @%.4f (%s)",
		action, req.Symbol, req.Side, size, price, req.Reason)
	return models.ExecutionResult{
		Success:     true,
		OrderID:     fill.OrderID,
		FilledPrice: price,
		FilledSize:  size,
	}
}

// roundSize 数量向下对齐到交易所步长，避免下出非法精度的单
func (p *PaperExecutor) roundSize(size float64) float64 {
	if !p.stepSize.IsPositive() {
		return size
	}
	d := decimal.NewFromFloat(size)
	rounded := d.Div(p.stepSize).Floor().Mul(p.stepSize)
	f, _ := rounded.Float64()
	return f
}

// Fills 返回已记录成交的副本
func (p *PaperExecutor) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}
