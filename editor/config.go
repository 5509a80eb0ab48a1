package editor

// 编辑器可调参数，容差作为配置而不是硬编码常量
type Config struct {
	// 拾取容差（米），在实体精确命中范围之外的额外余量
	PickTolerance float64 `mapstructure:"pick_tolerance"`
	// 交叉口拾取半径（米）
	NodeRadius float64 `mapstructure:"node_radius"`
	// 历史栈深度上限，0表示不限
	HistoryLimit int `mapstructure:"history_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		PickTolerance: 1.0,
		NodeRadius:    2.0,
		HistoryLimit:  0,
	}
}
