package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"git.fiblab.net/sim/mapedit/editor"
)

// 编辑器参数来自配置文件与环境变量，环境变量MAPEDIT_PICK_TOLERANCE覆盖pick_tolerance
func loadConfig(file string) (*editor.Config, error) {
	v := viper.New()

	def := editor.DefaultConfig()
	v.SetDefault("pick_tolerance", def.PickTolerance)
	v.SetDefault("node_radius", def.NodeRadius)
	v.SetDefault("history_limit", def.HistoryLimit)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix("MAPEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &editor.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.PickTolerance < 0 || cfg.NodeRadius <= 0 || cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("invalid config: pick_tolerance=%v node_radius=%v history_limit=%d",
			cfg.PickTolerance, cfg.NodeRadius, cfg.HistoryLimit)
	}
	return cfg, nil
}
