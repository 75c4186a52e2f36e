package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-agent-go/internal/agent"
	"quant-agent-go/internal/backtest"
	"quant-agent-go/internal/config"
	"quant-agent-go/internal/dispatcher"
	"quant-agent-go/internal/executor"
	"quant-agent-go/internal/feed"
	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"
	"quant-agent-go/internal/notifier"
	"quant-agent-go/internal/persistence"
	"quant-agent-go/internal/reporter"
	"quant-agent-go/internal/strategy"

	"github.com/joho/godotenv"
)

const klineCacheDir = "data/klines"

func main() {
	configPath := flag.String("config", "config.json", "配置文件路径")
	mode := flag.String("mode", "live", "运行模式: live | backtest | optimize")
	strategyName := flag.String("strategy", "", "只处理指定名称的策略 (backtest 模式)")
	days := flag.Int("days", 0, "回测天数，0 表示使用配置值")
	flag.Parse()

	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg.LogConfig)
	log := logger.S()

	if *days > 0 {
		cfg.BacktestDays = *days
	}

	binance := feed.NewBinanceSource(cfg.LiveAPIURL, cfg.LiveWSURL)
	source := feed.NewCachedSource(binance, klineCacheDir)

	switch *mode {
	case "backtest":
		runBacktest(cfg, source, *strategyName)
	case "optimize":
		runOptimize(cfg, source)
	case "live":
		runLive(cfg, binance)
	default:
		log.Fatalf("未知的运行模式: %s", *mode)
	}
}

// runBacktest 对配置里的策略逐个回放历史数据并打印报告
func runBacktest(cfg *models.Config, source feed.Source, only string) {
	log := logger.S()
	sim := backtest.NewSimulator(cfg.TakerFeeRate)
	rep := reporter.New()

	end := time.Now().UTC().Truncate(time.Minute)
	start := end.AddDate(0, 0, -cfg.BacktestDays)

	ran := 0
	for _, sc := range cfg.Strategies {
		if only != "" && sc.Name != only {
			continue
		}
		candles, err := source.FetchCandles(sc.Symbol, start, end, "1m")
		if err != nil || len(candles) == 0 {
			// 回测路径允许回退到合成数据
			log.Warnf("获取 %s 历史K线失败，使用合成数据: %v", sc.Symbol, err)
			candles = feed.SyntheticCandles(start, cfg.BacktestDays*24*60, time.Minute, 100)
		}
		res, err := sim.Run(sc, candles)
		if err != nil {
			log.Errorf("策略 %s 回测失败: %v", sc.Name, err)
			continue
		}
		rep.PrintBacktestResult(res)
		ran++
	}
	if ran == 0 {
		log.Warnf("没有匹配的策略可回测")
	}
}

// runOptimize 启动全部优化代理并等待完成或退出信号
func runOptimize(cfg *models.Config, source feed.Source) {
	log := logger.S()
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	defer repo.Close()

	sim := backtest.NewSimulator(cfg.TakerFeeRate)
	notify := notifier.NewZapNotifier()
	registry := agent.NewRegistry()
	rep := reporter.New()

	for _, ac := range cfg.Agents {
		a := agent.New(ac, sim, source, repo, notify)
		if err := registry.Register(a); err != nil {
			log.Fatalf("注册代理失败: %v", err)
		}
		if err := a.Start(); err != nil {
			log.Errorf("启动代理 %s 失败: %v", ac.Name, err)
		}
	}
	if len(registry.List()) == 0 {
		log.Warnf("配置中没有优化代理")
		return
	}

	done := make(chan struct{})
	go func() {
		for _, a := range registry.List() {
			<-a.Done()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Infof("全部代理已完成")
	case <-shutdownSignal():
		log.Infof("收到退出信号，等待当前轮结束...")
		registry.StopAll()
	}

	for _, a := range registry.List() {
		rep.PrintOptimizationHistory(a.State())
	}
}

// runLive 构建启用的策略实例并接入实时行情调度
func runLive(cfg *models.Config, source feed.Source) {
	log := logger.S()
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	defer repo.Close()

	notify := notifier.NewZapNotifier()
	// 订单执行走模拟通道，只记录不触达真实交易所
	exec := executor.NewPaperExecutor(source.GetCurrentPrice, 0)
	throttle := time.Duration(cfg.ThrottleIntervalMs) * time.Millisecond
	disp := dispatcher.New(source, exec, notify, throttle)
	disp.SetTradeLog(repo)

	started := 0
	for _, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		inst, err := strategy.New(sc)
		if err != nil {
			log.Errorf("构建策略 %s 失败: %v", sc.Name, err)
			continue
		}
		if err := inst.Start(); err != nil {
			log.Errorf("启动策略 %s 失败: %v", sc.Name, err)
			continue
		}
		if err := disp.Register(inst); err != nil {
			log.Errorf("挂载策略 %s 失败: %v", sc.Name, err)
			inst.Stop()
			continue
		}
		if err := repo.SaveStrategy(sc); err != nil {
			log.Warnf("持久化策略配置 %s 失败: %v", sc.Name, err)
		}
		started++
	}
	if started == 0 {
		log.Fatalf("没有启用的策略，退出")
	}
	log.Infof("实时调度已启动: %d 个策略, 节流间隔 %s", started, throttle)

	<-shutdownSignal()
	log.Infof("收到退出信号，正在停止...")
	disp.Stop()
}

func shutdownSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}
