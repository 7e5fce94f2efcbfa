package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tradepulse/internal/logger"
)

// WatchLogLevel re-reads the config file on change and applies the new
// log level without a restart. Other fields require a restart; silently
// repointing a running store or scheduler is not worth the edge cases.
func WatchLogLevel(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		logger.Warnf("config watch: initial read failed (%s): %v", path, err)
		return
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Warnf("config watch: reload failed after %s: %v", evt.Op, err)
			return
		}
		level := strings.TrimSpace(v.GetString("app.log_level"))
		if level == "" {
			return
		}
		logger.SetLevel(level)
		logger.Infof("config watch: log level set to %s", level)
	})
	v.WatchConfig()
}
