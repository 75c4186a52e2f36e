package executor

import "quant-agent-go/internal/models"

// Executor 统一的订单执行接口。
// 实现方返回带 success 标志的结果而不是抛错，失败原因放在 Error 字段里。
type Executor interface {
	ExecuteOrder(req models.ExecutionRequest) models.ExecutionResult
	ClosePosition(req models.ExecutionRequest) models.ExecutionResult
}
