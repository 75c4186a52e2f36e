package agent

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"quant-agent-go/internal/advisor"
	"quant-agent-go/internal/backtest"
	"quant-agent-go/internal/feed"
	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"
	"quant-agent-go/internal/notifier"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

const (
	historyCap  = 100 // 优化历史最多保留的轮数
	ringLogCap  = 200
	paperDays   = 7 // 晋级前模拟盘确认使用的回测窗口天数
	backtestInt = "1m"
)

// CandleSource 提供历史K线，优化回测的数据来源
type CandleSource interface {
	FetchCandles(symbol string, start, end time.Time, interval string) ([]models.Candle, error)
}

// StateStore 持久化代理状态快照，崩溃重启后可恢复进度
type StateStore interface {
	SaveAgentState(state models.AgentState) error
}

// Agent 优化代理：围绕一份策略配置做有界的参数搜索，
// 跟踪最优候选并推动 优化 -> 模拟盘确认 -> 实盘 的晋级流程。
type Agent struct {
	cfg    models.AgentConfig
	sim    *backtest.Simulator
	source CandleSource
	store  StateStore
	notify notifier.Notifier
	log    *zap.SugaredLogger
	ring   *RingLog
	rng    *rand.Rand

	mu       sync.Mutex
	state    models.AgentState
	running  bool
	bestSet  bool
	stopFlag atomic.Bool
	done     chan struct{}
}

// New 创建一个代理。store 可以为 nil，此时状态不做持久化。
func New(cfg models.AgentConfig, sim *backtest.Simulator, source CandleSource,
	store StateStore, notify notifier.Notifier) *Agent {
	// 未启动时 Done 返回已关闭的通道
	done := make(chan struct{})
	close(done)
	return &Agent{
		done:   done,
		cfg:    cfg,
		sim:    sim,
		source: source,
		store:  store,
		notify: notify,
		log:    logger.Named("agent." + cfg.Name),
		ring:   NewRingLog(ringLogCap),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state: models.AgentState{
			Name:   cfg.Name,
			Status: models.AgentIdle,
		},
	}
}

// SetSeed 固定随机源，让参数搜索可复现
func (a *Agent) SetSeed(seed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng = rand.New(rand.NewSource(seed))
}

// Start 启动后台优化循环。已在运行时记一条警告并直接返回。
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		a.log.Warnf("代理已在运行，忽略重复启动")
		return nil
	}
	raw := uuid.New()
	a.running = true
	a.stopFlag.Store(false)
	a.bestSet = false
	a.state.RunID = base62.EncodeToString(raw[:])
	a.state.Status = models.AgentOptimizing
	a.state.CurrentRound = 0
	a.state.TotalRounds = a.cfg.OptimizationRounds
	a.state.BestScore = 0
	a.state.BestParams = nil
	a.state.BestResult = nil
	a.state.History = nil
	a.touchLocked()
	a.ring.Appendf("优化启动 run=%s 轮数=%d", a.state.RunID, a.cfg.OptimizationRounds)
	a.done = make(chan struct{})
	go a.run()
	return nil
}

// Stop 请求协作式停止。循环只在每轮开始时检查标志，
// 进行中的回测总是会先跑完。重复调用无副作用。
func (a *Agent) Stop() {
	if a.stopFlag.Swap(true) {
		return
	}
	a.log.Infof("收到停止请求，将在当前轮结束后退出")
}

// Done 返回在本次优化结束时关闭的通道
func (a *Agent) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// State 返回状态快照
func (a *Agent) State() models.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Logs 返回活动日志，最旧的在前
func (a *Agent) Logs() []LogEntry {
	return a.ring.Entries()
}

func (a *Agent) run() {
	defer func() {
		a.mu.Lock()
		a.running = false
		close(a.done)
		a.mu.Unlock()
	}()

	days := a.cfg.BacktestDays
	if days <= 0 {
		days = 30
	}
	candles := a.loadCandles(days)

	for round := 1; round <= a.cfg.OptimizationRounds; round++ {
		if a.stopFlag.Load() {
			a.ring.Appendf("第 %d 轮前收到停止标志，提前退出", round)
			a.log.Infof("优化提前退出于第 %d 轮", round)
			a.mu.Lock()
			a.state.Status = models.AgentIdle
			a.touchLocked()
			a.mu.Unlock()
			a.saveState()
			return
		}

		params := a.mutate(round)
		cfg, err := a.buildConfig(params)
		if err != nil {
			a.ring.Appendf("第 %d 轮参数非法被跳过: %v", round, err)
			continue
		}
		res, err := a.sim.Run(cfg, candles)
		if err != nil {
			a.ring.Appendf("第 %d 轮回测失败: %v", round, err)
			continue
		}
		score := compositeScore(res)

		a.mu.Lock()
		a.state.CurrentRound = round
		a.state.History = append(a.state.History, models.OptimizationRound{
			Round:        round,
			Params:       params,
			Score:        score,
			WinRate:      res.WinRate,
			ProfitFactor: res.ProfitFactor,
			SharpeRatio:  res.SharpeRatio,
			Drawdown:     res.MaxDrawdownPercent,
		})
		if len(a.state.History) > historyCap {
			a.state.History = a.state.History[len(a.state.History)-historyCap:]
		}
		if !a.bestSet || score > a.state.BestScore {
			a.bestSet = true
			a.state.BestScore = score
			a.state.BestParams = params
			a.state.BestResult = res
			a.ring.Appendf("第 %d 轮刷新最优: 得分 %.2f 胜率 %.1f%% 回撤 %.2f%%",
				round, score, res.WinRate*100, res.MaxDrawdownPercent)
		}
		a.touchLocked()
		a.mu.Unlock()
		a.saveState()
	}

	a.finishRun(candles)
}

// finishRun 在搜索结束后做验收、模拟盘确认与晋级
func (a *Agent) finishRun(candles []models.Candle) {
	a.mu.Lock()
	best := a.state.BestResult
	params := a.state.BestParams
	a.mu.Unlock()

	if best == nil || !a.accepts(best) {
		a.ring.Appendf("最优结果未通过验收阈值，本轮搜索作废")
		a.alert(models.AlertWarning, "优化未通过",
			fmt.Sprintf("代理 %s 的最优结果未达到验收阈值", a.cfg.Name))
		a.mu.Lock()
		a.state.Status = models.AgentIdle
		a.touchLocked()
		a.mu.Unlock()
		a.saveState()
		return
	}

	if a.cfg.PaperTradingFirst {
		a.mu.Lock()
		a.state.Status = models.AgentPaperTrading
		a.touchLocked()
		a.mu.Unlock()

		confirm, err := a.paperConfirm(params, candles)
		if err != nil || !a.accepts(confirm) {
			// 确认窗口失败视为整次搜索失败，最优结果不保留
			a.ring.Appendf("模拟盘确认失败，清空最优结果")
			a.alert(models.AlertWarning, "模拟盘确认失败",
				fmt.Sprintf("代理 %s 的最优参数在近期窗口上未通过阈值", a.cfg.Name))
			a.mu.Lock()
			a.bestSet = false
			a.state.BestResult = nil
			a.state.BestParams = nil
			a.state.BestScore = 0
			a.state.Status = models.AgentIdle
			a.touchLocked()
			a.mu.Unlock()
			a.saveState()
			return
		}
		a.ring.Appendf("模拟盘确认通过: 胜率 %.1f%% 夏普 %.2f", confirm.WinRate*100, confirm.SharpeRatio)
	}

	a.mu.Lock()
	if a.cfg.AutoEnableLive {
		a.state.LiveEnabled = true
		a.state.Status = models.AgentLive
		a.touchLocked()
		a.mu.Unlock()
		a.ring.Appendf("验收通过，自动启用实盘")
		a.alert(models.AlertInfo, "自动启用实盘",
			fmt.Sprintf("代理 %s 已通过验收并启用实盘", a.cfg.Name))
	} else {
		a.state.Status = models.AgentPaperTrading
		a.touchLocked()
		a.mu.Unlock()
		a.ring.Appendf("验收通过，等待人工批准")
		a.alert(models.AlertInfo, "等待批准",
			fmt.Sprintf("代理 %s 已通过验收，等待 approve 启用实盘", a.cfg.Name))
	}
	a.saveState()
}

// paperConfirm 用最优参数在更短的近期窗口上重新回测
func (a *Agent) paperConfirm(params map[string]float64, candles []models.Candle) (*models.BacktestResult, error) {
	cfg, err := a.buildConfig(params)
	if err != nil {
		return nil, err
	}
	window := paperDays * 24 * 60
	if window > len(candles) {
		window = len(candles)
	}
	return a.sim.Run(cfg, candles[len(candles)-window:])
}

// Approve 人工批准晋级。启用前重新校验验收阈值，拒绝已经失效的批准。
func (a *Agent) Approve() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.LiveEnabled {
		a.log.Warnf("实盘已启用，忽略重复批准")
		return nil
	}
	if a.state.BestResult == nil || !a.accepts(a.state.BestResult) {
		a.ring.Appendf("批准被拒绝: 最优结果缺失或已不满足阈值")
		return fmt.Errorf("代理 %s 没有可批准的合格结果", a.cfg.Name)
	}
	a.state.LiveEnabled = true
	a.state.Status = models.AgentLive
	a.touchLocked()
	a.ring.Appendf("人工批准通过，实盘已启用")
	go a.saveState()
	return nil
}

// ApplyRecommendation 把外部顾问的参数建议套到当前最优参数上。
// 建议先过夹板再过置信度门槛；不允许自动应用时返回错误，等待人工处理。
func (a *Agent) ApplyRecommendation(adv *advisor.Advisor, rec models.Recommendation) error {
	clamped, autoOK := adv.Evaluate(rec)
	if !autoOK {
		return fmt.Errorf("代理 %s 的建议未达到自动应用条件", a.cfg.Name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("代理 %s 正在优化中，拒绝外部参数变更", a.cfg.Name)
	}
	base := a.state.BestParams
	if base == nil {
		base = a.cfg.Strategy.TunableParams()
	}
	params := make(map[string]float64, len(base))
	for k, v := range base {
		params[k] = v
	}
	for k, v := range clamped {
		params[k] = v
	}
	if _, err := a.buildConfig(params); err != nil {
		return fmt.Errorf("建议参数未通过校验: %w", err)
	}
	a.state.BestParams = params
	a.touchLocked()
	a.ring.Appendf("已应用顾问建议，更新 %d 个参数", len(clamped))
	go a.saveState()
	return nil
}

// Pause 暂停实盘信号，不触发重新优化
func (a *Agent) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.LiveEnabled {
		return
	}
	a.state.LiveEnabled = false
	a.state.Status = models.AgentPaused
	a.touchLocked()
	a.ring.Appendf("实盘已暂停")
	go a.saveState()
}

// Resume 恢复被暂停的实盘
func (a *Agent) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status != models.AgentPaused {
		return
	}
	a.state.LiveEnabled = true
	a.state.Status = models.AgentLive
	a.touchLocked()
	a.ring.Appendf("实盘已恢复")
	go a.saveState()
}

// accepts 检查结果是否同时满足四个验收阈值
func (a *Agent) accepts(res *models.BacktestResult) bool {
	return res.WinRate >= a.cfg.MinWinRate &&
		res.ProfitFactor >= a.cfg.MinProfitFactor &&
		res.MaxDrawdownPercent <= a.cfg.MaxDrawdownPercent &&
		res.SharpeRatio >= a.cfg.MinSharpeRatio
}

// mutationRate 每轮的参数重采样概率，随轮数线性衰减到下限 0.1
func mutationRate(round int) float64 {
	return math.Max(0.1, 0.5-0.01*float64(round))
}

// compositeScore 把一次回测压缩成单一评分用于轮间比较
func compositeScore(res *models.BacktestResult) float64 {
	return 0.3*res.WinRate*100 +
		0.3*math.Min(res.ProfitFactor, 3)*20 +
		0.2*math.Min(res.SharpeRatio, 3)*20 -
		2*math.Max(0, res.MaxDrawdownPercent-10)
}

// mutate 从当前最优（第一轮为默认配置）出发，
// 每个可调参数独立地以 mutationRate 的概率重采样到步长网格上的随机合法值
func (a *Agent) mutate(round int) map[string]float64 {
	rate := mutationRate(round)

	a.mu.Lock()
	base := a.state.BestParams
	a.mu.Unlock()
	if base == nil {
		base = a.cfg.Strategy.TunableParams()
	}

	out := make(map[string]float64, len(a.cfg.ParamRanges))
	for k, v := range base {
		out[k] = v
	}

	keys := make([]string, 0, len(a.cfg.ParamRanges))
	for k := range a.cfg.ParamRanges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		r := a.cfg.ParamRanges[k]
		if _, ok := out[k]; !ok {
			out[k] = r.Min
		}
		if a.rng.Float64() >= rate {
			continue
		}
		steps := 1
		if r.Step > 0 && r.Max > r.Min {
			steps = int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
		}
		out[k] = r.Min + r.Step*float64(a.rng.Intn(steps))
	}
	return out
}

// buildConfig 把参数表套用到策略配置的深拷贝上并重新校验
func (a *Agent) buildConfig(params map[string]float64) (models.StrategyConfig, error) {
	cfg := a.cfg.Strategy.Clone()
	for name, v := range params {
		cfg.ApplyParam(name, v)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (a *Agent) loadCandles(days int) []models.Candle {
	end := time.Now().UTC().Truncate(time.Minute)
	start := end.AddDate(0, 0, -days)
	candles, err := a.source.FetchCandles(a.cfg.Strategy.Symbol, start, end, backtestInt)
	if err != nil || len(candles) == 0 {
		// 优化路径允许回退到合成数据，实盘路径绝不允许
		a.log.Warnf("历史K线获取失败，回退到合成数据: %v", err)
		a.ring.Appendf("历史K线获取失败，使用合成数据")
		candles = feed.SyntheticCandles(start, days*24*60, time.Minute, 100)
	}
	return candles
}

func (a *Agent) alert(level models.AlertLevel, title, msg string) {
	if a.notify == nil {
		return
	}
	a.notify.Notify(models.Alert{Level: level, Title: title, Message: msg})
}

func (a *Agent) touchLocked() {
	a.state.LastUpdateTime = time.Now().UTC()
}

func (a *Agent) saveState() {
	if a.store == nil {
		return
	}
	a.mu.Lock()
	snapshot := a.state
	a.mu.Unlock()
	if err := a.store.SaveAgentState(snapshot); err != nil {
		a.log.Warnf("状态持久化失败: %v", err)
	}
}
