package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"quant-agent-go/internal/logger"
	"quant-agent-go/internal/models"

	"go.uber.org/zap"
)

// CachedSource 给任意行情源加一层本地CSV缓存。
// 同一 (交易对, 周期, 区间) 的历史K线只会真正下载一次。
type CachedSource struct {
	Source
	dir string
	log *zap.SugaredLogger
}

func NewCachedSource(inner Source, dir string) *CachedSource {
	return &CachedSource{
		Source: inner,
		dir:    dir,
		log:    logger.Named("feed.cache"),
	}
}

func (c *CachedSource) FetchCandles(symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	path := filepath.Join(c.dir, fmt.Sprintf("%s_%s_%d_%d.csv",
		symbol, interval, start.Unix(), end.Unix()))

	if candles, err := LoadCandlesCSV(path); err == nil {
		c.log.Infof("从缓存加载数据: %s (%d 条)", path, len(candles))
		return candles, nil
	}

	candles, err := c.Source.FetchCandles(symbol, start, end, interval)
	if err != nil {
		return nil, err
	}
	if err := SaveCandlesCSV(path, candles); err != nil {
		c.log.Warnf("写入缓存失败: %v", err)
	}
	return candles, nil
}

// SaveCandlesCSV 把K线序列写入CSV文件，目录不存在时自动创建
func SaveCandlesCSV(path string, candles []models.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("无法创建目录: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"open_time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		record := []string{
			strconv.FormatInt(c.OpenTime.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// LoadCandlesCSV 读取 SaveCandlesCSV 写出的文件
func LoadCandlesCSV(path string) ([]models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取CSV失败: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV文件 %s 没有数据行", path)
	}

	out := make([]models.Candle, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("第 %d 行字段不足", i+2)
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行时间戳非法: %w", i+2, err)
		}
		vals := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行数值非法: %w", i+2, err)
			}
			vals[j] = v
		}
		out = append(out, models.Candle{
			OpenTime: time.UnixMilli(ms),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}
