package aggregator

import (
	"context"
	"fmt"
	"math"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"

	"go.uber.org/zap"
)

// 图表时间轴使用的 ISO8601 格式（与前端约定一致）
const seriesTimeLayout = "2006-01-02T15:04:05"

// VitalsAggregator 生命体征聚合器
// 对单个设备在新鲜度窗口内的采样做固定桶宽降采样与标量均值
type VitalsAggregator struct {
	vitalsRepo repository.VitalsRepository
	bucketSize time.Duration
	logger     *zap.Logger

	now func() time.Time // 测试可替换
}

// NewVitalsAggregator 创建聚合器
func NewVitalsAggregator(vitalsRepo repository.VitalsRepository, bucketSize time.Duration, logger *zap.Logger) *VitalsAggregator {
	return &VitalsAggregator{
		vitalsRepo: vitalsRepo,
		bucketSize: bucketSize,
		logger:     logger,
		now:        time.Now,
	}
}

// Aggregate 对设备在窗口内的采样做桶降采样
// 空桶的值是 nil（JSON null），不会出现 NaN 或数字哨兵
func (a *VitalsAggregator) Aggregate(ctx context.Context, deviceID string, window time.Duration) (*models.AggregatedSeries, error) {
	now := a.now()
	since := now.Add(-window)

	samples, err := a.vitalsRepo.QueryVitals(ctx, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for aggregation: %w", err)
	}

	// 桶起点对齐到墙钟：落在包含 since 的那个桶上，
	// 窗口起点不在桶边界时首桶是部分桶，窗口内采样不丢
	start := since.Truncate(a.bucketSize)
	bucketCount := int(now.Sub(start)/a.bucketSize) + 1
	if bucketCount < 0 {
		bucketCount = 0
	}

	series := &models.AggregatedSeries{
		Timestamps: make([]string, bucketCount),
		HeartRate:  make([]*float64, bucketCount),
		SpO2:       make([]*float64, bucketCount),
	}

	heartSums := make([]float64, bucketCount)
	heartCounts := make([]int, bucketCount)
	spo2Sums := make([]float64, bucketCount)
	spo2Counts := make([]int, bucketCount)

	for i := 0; i < bucketCount; i++ {
		series.Timestamps[i] = start.Add(time.Duration(i) * a.bucketSize).Format(seriesTimeLayout)
	}

	for _, sample := range samples {
		if sample.Timestamp.Before(start) {
			continue
		}
		idx := int(sample.Timestamp.Sub(start) / a.bucketSize)
		if idx < 0 || idx >= bucketCount {
			continue
		}
		if sample.HeartRate != nil {
			heartSums[idx] += *sample.HeartRate
			heartCounts[idx]++
		}
		if sample.SpO2 != nil {
			spo2Sums[idx] += *sample.SpO2
			spo2Counts[idx]++
		}
	}

	for i := 0; i < bucketCount; i++ {
		if heartCounts[i] > 0 {
			v := round2(heartSums[i] / float64(heartCounts[i]))
			series.HeartRate[i] = &v
		}
		if spo2Counts[i] > 0 {
			v := round2(spo2Sums[i] / float64(spo2Counts[i]))
			series.SpO2[i] = &v
		}
	}

	return series, nil
}

// AverageScalar 窗口内指标的算术均值（排除该指标为 NULL 的采样）
// 无合格采样时返回 nil，调用方据此判断"无数据"
func (a *VitalsAggregator) AverageScalar(ctx context.Context, deviceID string, window time.Duration, metric models.Metric) (*float64, error) {
	since := a.now().Add(-window)

	samples, err := a.vitalsRepo.QueryVitals(ctx, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for scalar average: %w", err)
	}

	var sum float64
	var count int
	for _, sample := range samples {
		var v *float64
		switch metric {
		case models.MetricTemperature:
			v = sample.Temperature
		case models.MetricHeartRate:
			v = sample.HeartRate
		case models.MetricSpO2:
			v = sample.SpO2
		default:
			return nil, fmt.Errorf("unknown metric: %s", metric)
		}
		if v == nil {
			continue
		}
		sum += *v
		count++
	}

	if count == 0 {
		a.logger.Debug("No samples in window for scalar average",
			zap.String("device_id", deviceID),
			zap.String("metric", string(metric)),
		)
		return nil, nil
	}

	avg := round2(sum / float64(count))
	return &avg, nil
}

// round2 保留 2 位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
