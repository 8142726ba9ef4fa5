package evaluator

import "wisefido-vitals/internal/models"

// 固定阈值表（来源：临床配置，不从数据库读取）
const (
	// 体温（摄氏度）
	TempCritical    = 38.1 // >= 为 critical
	TempMildUpper   = 37.5 // (TempNormalUpper, TempMildUpper] 为 mild
	TempNormalUpper = 36.6
	TempNormalLower = 36.1 // < 为 hypothermia

	// 心率（bpm）
	HeartRateCritical = 150.0 // >= 为 critical
	HeartRateMild     = 120.0 // >= 为 mild
	HeartRateLow      = 50.0  // < 为 below-threshold

	// 血氧（%）
	SpO2Critical = 85.0 // <= 为 critical
	SpO2Mild     = 90.0 // <= 为 mild
)

// 各等级的固定提示语
const (
	MsgTempCritical    = "Critical temperature!"
	MsgTempMild        = "Mildly elevated temperature"
	MsgTempHypothermia = "Hypothermia risk: low temperature"
	MsgTempNormal      = "Normal temperature"

	MsgHeartRateCritical = "Critical heart rate!"
	MsgHeartRateMild     = "Mildly elevated heart rate"
	MsgHeartRateLow      = "Heart rate below threshold"
	MsgHeartRateNormal   = "Normal heart rate"

	MsgSpO2Critical = "Critical SpO2 level!"
	MsgSpO2Mild     = "Mildly low SpO2"
	MsgSpO2Normal   = "Normal SpO2"
)

// Classify 对已聚合的标量值做临床分级
// 纯函数，无副作用；判定顺序为最严重优先，重叠区间落到更严重的等级
func Classify(metric models.Metric, value float64) models.SeverityReading {
	switch metric {
	case models.MetricTemperature:
		return classifyTemperature(value)
	case models.MetricHeartRate:
		return classifyHeartRate(value)
	case models.MetricSpO2:
		return classifySpO2(value)
	default:
		// 未知指标按正常处理，由调用方保证指标合法
		return models.SeverityReading{Value: value, Color: models.ColorGreen}
	}
}

func classifyTemperature(value float64) models.SeverityReading {
	r := models.SeverityReading{Value: value}
	switch {
	case value >= TempCritical:
		r.Color, r.Message = models.ColorRed, MsgTempCritical
	case value > TempNormalUpper:
		r.Color, r.Message = models.ColorYellow, MsgTempMild
	case value < TempNormalLower:
		r.Color, r.Message = models.ColorBlue, MsgTempHypothermia
	default:
		r.Color, r.Message = models.ColorGreen, MsgTempNormal
	}
	return r
}

func classifyHeartRate(value float64) models.SeverityReading {
	r := models.SeverityReading{Value: value}
	switch {
	case value >= HeartRateCritical:
		r.Color, r.Message = models.ColorRed, MsgHeartRateCritical
	case value >= HeartRateMild:
		r.Color, r.Message = models.ColorYellow, MsgHeartRateMild
	case value < HeartRateLow:
		r.Color, r.Message = models.ColorBlue, MsgHeartRateLow
	default:
		r.Color, r.Message = models.ColorGreen, MsgHeartRateNormal
	}
	return r
}

func classifySpO2(value float64) models.SeverityReading {
	r := models.SeverityReading{Value: value}
	switch {
	case value <= SpO2Critical:
		r.Color, r.Message = models.ColorRed, MsgSpO2Critical
	case value <= SpO2Mild:
		r.Color, r.Message = models.ColorYellow, MsgSpO2Mild
	default:
		r.Color, r.Message = models.ColorGreen, MsgSpO2Normal
	}
	return r
}
