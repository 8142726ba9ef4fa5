package models

// Metric 生命体征指标类型
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHeartRate   Metric = "heart_rate"
	MetricSpO2        Metric = "spo2"
)

// SeverityColor 报警颜色等级
type SeverityColor string

const (
	ColorRed    SeverityColor = "red"    // critical
	ColorYellow SeverityColor = "yellow" // mild
	ColorBlue   SeverityColor = "blue"   // hypothermia / below threshold
	ColorGreen  SeverityColor = "green"  // normal
)

// AggregatedSeries 单个设备在一个新鲜度窗口内的 2 分钟桶降采样序列
// 无数据的桶用 nil 表示（JSON null），不使用数字哨兵值
type AggregatedSeries struct {
	Timestamps []string   `json:"x"`            // 桶起始时间（ISO8601）
	HeartRate  []*float64 `json:"y_heart_rate"` // 每桶心率均值
	SpO2       []*float64 `json:"y_spo2"`       // 每桶血氧均值
}

// SeverityReading 单次分级结果（每指标、每患者、每周期重算，不落库）
type SeverityReading struct {
	Value   float64       `json:"value"`
	Color   SeverityColor `json:"color"`
	Message string        `json:"message"`
}
