package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// startWatch 开始监控配置文件，调用方持有 mu
func (c *Config) startWatch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if c.restoring.Load() {
			return
		}

		c.mu.RLock()
		watching, protected, onChange := c.watching, c.protected, c.onChange
		snap := append([]byte(nil), c.snap...)
		c.mu.RUnlock()

		if !watching {
			return
		}

		if protected {
			// 恢复写入本身也会触发事件，内容一致时跳过
			if cur, err := os.ReadFile(e.Name); err == nil && bytes.Equal(cur, snap) {
				return
			}
			c.log.Warn("配置文件被修改，保护模式下恢复", zap.String("file", e.Name))
			c.restore(snap)
			return
		}

		c.log.Info("配置文件已变更", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if onChange != nil {
			onChange(c)
		}
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StartWatch 开始监控配置文件变更，重复调用无副作用
func (c *Config) StartWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watching {
		return
	}
	c.startWatch()
}

// StopWatch 停止响应文件变更
// viper 无法关闭底层 fsnotify watcher，这里只让回调失效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// SetProtected 切换保护模式，开启时以当前文件内容为快照
func (c *Config) SetProtected(protected bool) {
	c.mu.Lock()
	c.protected = protected
	var snapErr error
	if protected {
		snapErr = c.saveSnapshot()
	}
	c.mu.Unlock()

	if snapErr != nil {
		c.reportError(snapErr)
	}
}

// IsProtected 是否处于保护模式
func (c *Config) IsProtected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protected
}

// saveSnapshot 保存配置文件快照，调用方持有 mu
func (c *Config) saveSnapshot() error {
	file := c.viper.ConfigFileUsed()
	if file == "" {
		return nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	c.snap = data
	return nil
}

// restore 用快照覆盖配置文件（临时文件 + rename）并重新读取
func (c *Config) restore(content []byte) {
	if content == nil {
		return
	}
	file := c.ConfigFileUsed()
	if file == "" {
		return
	}

	c.restoring.Store(true)
	defer c.restoring.Store(false)

	if err := writeAtomic(file, content); err != nil {
		c.reportError(fmt.Errorf("恢复配置文件失败: %w", err))
		return
	}

	c.mu.Lock()
	err := c.viper.ReadInConfig()
	c.mu.Unlock()
	if err != nil {
		c.reportError(fmt.Errorf("恢复后重新加载配置失败: %w", err))
	}
}

func writeAtomic(file string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(file), ".config-restore-*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, file); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

// reportError 优先交给 onError，否则写日志
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	c.log.Error("config", zap.Error(err))
}
