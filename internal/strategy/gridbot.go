package strategy

import (
	"fmt"
	"sync"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

// rebalanceBandRatio 价格超出网格区间宽度该比例时才建议重铺网格
const rebalanceBandRatio = 0.12

// GridBot 网格策略：在固定价格区间内铺设等距买卖档位，
// 任何一档成交后在相反方向一个间距处挂出镜像单。
type GridBot struct {
	cfg   models.StrategyConfig
	grid  models.GridParams
	log   *zap.SugaredLogger
	nowFn Clock

	mu                sync.Mutex
	running           bool
	levels            []*models.GridLevel
	spacing           float64
	realizedPnL       float64
	unrealizedPnL     float64
	stopLossTriggered bool
	totalTrades       int
	wins              int
	losses            int
	tradeSeq          int
}

func NewGridBot(cfg models.StrategyConfig) (*GridBot, error) {
	if cfg.Type != models.StrategyGridBot || cfg.Grid == nil {
		return nil, fmt.Errorf("配置类型 %s 不是网格策略", cfg.Type)
	}
	return &GridBot{
		cfg:   cfg,
		grid:  *cfg.Grid,
		log:   logger.Named("grid." + cfg.Name),
		nowFn: time.Now,
	}, nil
}

// SetClock 注入时钟，回测使用K线时间代替真实时间
func (g *GridBot) SetClock(fn Clock) { g.nowFn = fn }

func (g *GridBot) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.log.Warnf("策略已在运行，忽略重复启动")
		return nil
	}
	g.running = true
	g.log.Infof("网格策略启动: %s 区间 [%.4f, %.4f] 档位数 %d",
		g.cfg.Symbol, g.grid.LowerPrice, g.grid.UpperPrice, g.grid.GridCount)
	return nil
}

func (g *GridBot) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.running = false
	g.log.Infof("网格策略停止: 已实现盈亏 %.4f", g.realizedPnL)
}

// initializeGrids 以参考价为界铺设 gridCount+1 个等距档位。
// 高于参考价的档位挂卖单，其余挂买单。调用方必须持有锁。
func (g *GridBot) initializeGrids(refPrice float64) {
	g.spacing = (g.grid.UpperPrice - g.grid.LowerPrice) / float64(g.grid.GridCount)
	perLevelNotional := g.cfg.TotalCapital * float64(g.cfg.Leverage) / float64(g.grid.GridCount+1)

	g.levels = make([]*models.GridLevel, 0, g.grid.GridCount+1)
	for i := 0; i <= g.grid.GridCount; i++ {
		price := g.grid.LowerPrice + float64(i)*g.spacing
		side := models.Buy
		if price > refPrice {
			side = models.Sell
		}
		g.levels = append(g.levels, &models.GridLevel{
			Price:  price,
			Size:   perLevelNotional / price,
			Side:   side,
			Status: models.GridPending,
		})
	}
	g.log.Infof("网格初始化完成: 参考价 %.4f 间距 %.4f", refPrice, g.spacing)
}

// OnPriceUpdate 处理一次价格更新。
// 每个tick每个方向最多撮合最接近当前价的一个档位，成交即挂出镜像单。
func (g *GridBot) OnPriceUpdate(price float64) (*TickResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := &TickResult{}
	if !g.running || g.stopLossTriggered {
		res.StopLossTriggered = g.stopLossTriggered
		return res, nil
	}
	if g.levels == nil {
		g.initializeGrids(price)
	}

	if buy := g.nearestPending(models.Buy, price); buy != nil {
		buy.Status = models.GridFilled
		res.FilledOrders = append(res.FilledOrders, *buy)
		// 镜像卖单带上配对买入价，卖出时据此结算已实现盈亏
		g.levels = append(g.levels, &models.GridLevel{
			Price:      buy.Price + g.spacing,
			Size:       buy.Size,
			Side:       models.Sell,
			Status:     models.GridPending,
			EntryPrice: buy.Price,
		})
		g.log.Debugf("买单成交 @%.4f, 挂出镜像卖单 @%.4f", buy.Price, buy.Price+g.spacing)
	}

	if sell := g.nearestPending(models.Sell, price); sell != nil {
		sell.Status = models.GridFilled
		if sell.EntryPrice > 0 {
			pnl := sell.Size * (sell.Price - sell.EntryPrice)
			sell.PnL = pnl
			g.realizedPnL += pnl
			g.totalTrades++
			if pnl > 0 {
				g.wins++
			} else {
				g.losses++
			}
			now := g.nowFn()
			g.tradeSeq++
			res.ClosedTrades = append(res.ClosedTrades, models.TradeRecord{
				ID:         fmt.Sprintf("%s-g%d", g.cfg.ID, g.tradeSeq),
				Symbol:     g.cfg.Symbol,
				Side:       models.Sell,
				EntryPrice: sell.EntryPrice,
				ExitPrice:  sell.Price,
				Size:       sell.Size,
				PnL:        pnl,
				EntryTime:  now,
				ExitTime:   now,
				Reason:     "grid_fill",
			})
			g.log.Debugf("卖单成交 @%.4f, 配对买价 %.4f, 盈亏 %.4f", sell.Price, sell.EntryPrice, pnl)
		}
		res.FilledOrders = append(res.FilledOrders, *sell)
		g.levels = append(g.levels, &models.GridLevel{
			Price:  sell.Price - g.spacing,
			Size:   sell.Size,
			Side:   models.Buy,
			Status: models.GridPending,
		})
	}

	// 未实现盈亏按所有未卖出的持仓档位重算
	unreal := 0.0
	for _, lv := range g.levels {
		if lv.Status == models.GridPending && lv.Side == models.Sell && lv.EntryPrice > 0 {
			unreal += lv.Size * (price - lv.EntryPrice)
		}
	}
	g.unrealizedPnL = unreal

	if g.realizedPnL+unreal <= -g.grid.StopLossPercent/100*g.cfg.TotalCapital {
		g.stopLossTriggered = true
		res.StopLossTriggered = true
		g.log.Warnf("触发总资金止损: 已实现 %.4f 未实现 %.4f, 策略停止接受成交",
			g.realizedPnL, unreal)
	}
	return res, nil
}

// nearestPending 返回本tick可成交的、价格最接近当前价的挂单
func (g *GridBot) nearestPending(side models.Side, price float64) *models.GridLevel {
	var best *models.GridLevel
	for _, lv := range g.levels {
		if lv.Status != models.GridPending || lv.Side != side {
			continue
		}
		if side == models.Buy && price <= lv.Price {
			if best == nil || lv.Price < best.Price {
				best = lv
			}
		}
		if side == models.Sell && price >= lv.Price {
			if best == nil || lv.Price > best.Price {
				best = lv
			}
		}
	}
	return best
}

// ShouldRebalance 判断价格是否已明显脱离网格区间
func (g *GridBot) ShouldRebalance(price float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	width := g.grid.UpperPrice - g.grid.LowerPrice
	return price > g.grid.UpperPrice+width*rebalanceBandRatio ||
		price < g.grid.LowerPrice-width*rebalanceBandRatio
}

// Rebalance 撤销所有挂单并围绕新价格重铺同宽度的网格
func (g *GridBot) Rebalance(price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, lv := range g.levels {
		if lv.Status == models.GridPending {
			lv.Status = models.GridCancelled
		}
	}
	width := g.grid.UpperPrice - g.grid.LowerPrice
	g.grid.LowerPrice = price - width/2
	g.grid.UpperPrice = price + width/2
	g.initializeGrids(price)
	g.log.Infof("网格重铺: 新区间 [%.4f, %.4f]", g.grid.LowerPrice, g.grid.UpperPrice)
}

func (g *GridBot) Stats() models.StrategyStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	open := 0
	for _, lv := range g.levels {
		if lv.Status == models.GridPending && lv.Side == models.Sell && lv.EntryPrice > 0 {
			open++
		}
	}
	return models.StrategyStats{
		Running:           g.running,
		TotalTrades:       g.totalTrades,
		Wins:              g.wins,
		Losses:            g.losses,
		RealizedPnL:       g.realizedPnL,
		UnrealizedPnL:     g.unrealizedPnL,
		OpenPositions:     open,
		StopLossTriggered: g.stopLossTriggered,
	}
}

func (g *GridBot) Config() models.StrategyConfig { return g.cfg }
