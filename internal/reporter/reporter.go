package reporter

import (
	"fmt"
	"io"
	"os"

	"quant-agent-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Reporter 把回测结果与优化历史渲染成终端表格
type Reporter struct {
	out io.Writer
}

func New() *Reporter {
	return &Reporter{out: os.Stdout}
}

// NewWithWriter 允许把报告写到任意输出，测试用
func NewWithWriter(w io.Writer) *Reporter {
	return &Reporter{out: w}
}

// PrintBacktestResult 打印一次回测的性能报告
func (r *Reporter) PrintBacktestResult(res *models.BacktestResult) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("回测结果: %s %s", res.StrategyType, res.Symbol)
	t.AppendRows([]table.Row{
		{"回测周期", res.StartTime.Format("2006-01-02 15:04") + " ~ " + res.EndTime.Format("2006-01-02 15:04")},
		{"初始资金", fmt.Sprintf("%.2f USDT", res.StartBalance)},
		{"最终资金", fmt.Sprintf("%.2f USDT", res.EndBalance)},
		{"总利润", fmt.Sprintf("%.2f USDT", res.EndBalance-res.StartBalance)},
		{"总手续费", fmt.Sprintf("%.4f USDT", res.TotalFees)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"总交易次数", res.TotalTrades},
		{"盈利 / 亏损", fmt.Sprintf("%d / %d", res.Wins, res.Losses)},
		{"胜率", fmt.Sprintf("%.2f%%", res.WinRate*100)},
		{"盈亏比", fmt.Sprintf("%.2f", res.ProfitFactor)},
		{"夏普比率", fmt.Sprintf("%.2f", res.SharpeRatio)},
		{"最大回撤", fmt.Sprintf("%.2f%%", res.MaxDrawdownPercent)},
	})
	t.Render()
}

// PrintOptimizationHistory 打印优化代理的逐轮搜索记录
func (r *Reporter) PrintOptimizationHistory(state models.AgentState) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("优化历史: %s (run %s)", state.Name, state.RunID)
	t.AppendHeader(table.Row{"轮次", "得分", "胜率", "盈亏比", "夏普", "回撤"})
	for _, round := range state.History {
		t.AppendRow(table.Row{
			round.Round,
			fmt.Sprintf("%.2f", round.Score),
			fmt.Sprintf("%.2f%%", round.WinRate*100),
			fmt.Sprintf("%.2f", round.ProfitFactor),
			fmt.Sprintf("%.2f", round.SharpeRatio),
			fmt.Sprintf("%.2f%%", round.Drawdown),
		})
	}
	t.AppendFooter(table.Row{"最优", fmt.Sprintf("%.2f", state.BestScore), "", "", "", ""})
	t.Render()
}
