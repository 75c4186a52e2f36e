package advisor

import (
	"math"
	"sort"
	"strings"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

const (
	// 单参数变更幅度的硬上限（相对原值）
	maxChangeRatio = 0.20
	// 仓位类参数额外的绝对变更上限（百分点）
	maxAllocationDeltaPP = 10.0
)

// Advisor 消费外部顾问服务的参数调整建议。
// 不管建议里写了什么，这里都会先套上硬性的变更夹板再放行。
type Advisor struct {
	minConfidence float64
	log           *zap.SugaredLogger
}

func New(minConfidence float64) *Advisor {
	return &Advisor{
		minConfidence: minConfidence,
		log:           logger.Named("advisor"),
	}
}

// Evaluate 返回夹板后的目标参数表，以及该建议是否允许自动应用。
// 自动应用要求建议本身声明 AutoApply 且置信度达标。
func (a *Advisor) Evaluate(rec models.Recommendation) (map[string]float64, bool) {
	clamped := ClampChanges(rec.Changes)
	autoOK := rec.AutoApply && rec.Confidence >= a.minConfidence
	if !autoOK && rec.AutoApply {
		a.log.Warnf("建议置信度 %.2f 低于阈值 %.2f，转为人工确认", rec.Confidence, a.minConfidence)
	}

	keys := make([]string, 0, len(clamped))
	for k := range clamped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.log.Infof("建议参数 %s: %.4f -> %.4f (原始目标 %.4f)",
			k, rec.Changes[k].From, clamped[k], rec.Changes[k].To)
	}
	return clamped, autoOK
}

// ClampChanges 对每个参数套上 ±20% 相对夹板；
// 仓位类参数再叠加 ±10 个百分点的绝对夹板。
func ClampChanges(changes map[string]models.ParamChange) map[string]float64 {
	out := make(map[string]float64, len(changes))
	for name, ch := range changes {
		lo := ch.From - math.Abs(ch.From)*maxChangeRatio
		hi := ch.From + math.Abs(ch.From)*maxChangeRatio
		if isAllocationParam(name) {
			if l := ch.From - maxAllocationDeltaPP; l > lo {
				lo = l
			}
			if h := ch.From + maxAllocationDeltaPP; h < hi {
				hi = h
			}
		}
		out[name] = math.Min(math.Max(ch.To, lo), hi)
	}
	return out
}

func isAllocationParam(name string) bool {
	return strings.Contains(name, "position_size") || strings.Contains(name, "allocation")
}
