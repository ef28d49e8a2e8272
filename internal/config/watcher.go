package config

import (
	"fmt"
	"strings"
	"sync"

	"makerd/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SymbolsListener 在符号配置变更时被调用。
type SymbolsListener func([]SymbolConfig)

// SymbolsLoader 负责加载符号策略文件并监听热更新。
// A reload that fails schema or field validation is logged and dropped; the
// previous snapshot stays active.
type SymbolsLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  []SymbolConfig
	listeners []SymbolsListener
}

// NewSymbolsLoader 读取符号文件并开始监听 FS 事件。
func NewSymbolsLoader(path string) (*SymbolsLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("symbols loader requires path")
	}
	symbols, err := LoadSymbols(path)
	if err != nil {
		return nil, err
	}
	loader := &SymbolsLoader{path: path, snapshot: symbols}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("watching symbols file failed: %w", err)
	}
	loader.v = v
	v.OnConfigChange(func(evt fsnotify.Event) {
		fresh, err := LoadSymbols(loader.path)
		if err != nil {
			logger.Errorf("symbols reload failed (%s): %v", evt.Name, err)
			return
		}
		loader.mu.Lock()
		loader.snapshot = fresh
		listeners := append([]SymbolsListener(nil), loader.listeners...)
		loader.mu.Unlock()
		logger.Infof("symbols reloaded: %d entries", len(fresh))
		for _, fn := range listeners {
			go func(cb SymbolsListener) {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("symbols listener panic: %v", r)
					}
				}()
				cb(cloneSymbols(fresh))
			}(fn)
		}
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前符号配置快照（深拷贝）。
func (l *SymbolsLoader) Snapshot() []SymbolConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSymbols(l.snapshot)
}

// Subscribe 注册监听器。
func (l *SymbolsLoader) Subscribe(fn SymbolsListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func cloneSymbols(in []SymbolConfig) []SymbolConfig {
	out := make([]SymbolConfig, len(in))
	copy(out, in)
	for i := range out {
		layers := make([]LayerConfig, len(in[i].Strategy.Layers))
		copy(layers, in[i].Strategy.Layers)
		out[i].Strategy.Layers = layers
	}
	return out
}
