package config

import (
	"encoding/json"
	"fmt"
	"os"

	"quant-agent-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	applyDefaults(config)

	// 配置错误必须在启动阶段暴露，带非法参数的策略不允许被实例化
	for i := range config.Strategies {
		if err := config.Strategies[i].Validate(); err != nil {
			return nil, fmt.Errorf("策略 %q 配置非法: %w", config.Strategies[i].Name, err)
		}
	}
	for i := range config.Agents {
		if err := config.Agents[i].Strategy.Validate(); err != nil {
			return nil, fmt.Errorf("代理 %q 的策略配置非法: %w", config.Agents[i].Name, err)
		}
	}

	return config, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.ThrottleIntervalMs <= 0 {
		cfg.ThrottleIntervalMs = 1000
	}
	if cfg.BacktestDays <= 0 {
		cfg.BacktestDays = 30
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/agent.db"
	}
}
