package notifier

// Level 表示通知级别。
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Notifier 定义最小通知接口，组件依赖它而非具体实现。
type Notifier interface {
	Notify(level Level, message string) error
}

// Nop swallows every notification; used when Telegram is disabled.
type Nop struct{}

func (Nop) Notify(Level, string) error { return nil }
