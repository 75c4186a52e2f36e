package notifier

import (
	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

// Notifier 把告警投递到外部通知通道。
// 尽力送达：投递失败只记日志，绝不影响调用方状态。
type Notifier interface {
	Notify(alert models.Alert)
}

// ZapNotifier 把告警写入结构化日志，作为默认的通知通道
type ZapNotifier struct {
	log *zap.SugaredLogger
}

func NewZapNotifier() *ZapNotifier {
	return &ZapNotifier{log: logger.Named("notify")}
}

func (n *ZapNotifier) Notify(alert models.Alert) {
	switch alert.Level {
	case models.AlertCritical:
		n.log.Errorf("[%s] %s", alert.Title, alert.Message)
	case models.AlertWarning:
		n.log.Warnf("[%s] %s", alert.Title, alert.Message)
	default:
		n.log.Infof("[%s] %s", alert.Title, alert.Message)
	}
}
