package tinywebd

import (
	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/logging"
)

// Config collects everything Server's constructor needs: listen port and
// trigger mode, idle-connection timeout, database connection info, pool
// sizes, and logging setup.
type Config struct {
	Port      int
	TrigMode  int // 0: LT+LT, 1: LT+ET, 2: ET+LT, 3: ET+ET
	TimeoutMS int // idle-connection timeout; <= 0 disables the timer

	SrcDir string // static file root; defaults to cwd+"/resources/"

	DBDriver   string // only "sqlite3" is wired in
	DBDSN      string
	DBPoolSize int

	ThreadNum int // worker pool size

	OpenLog      bool
	LogLevel     logging.LogLevel
	LogDir       string
	LogQueueSize int
}

// DefaultConfig returns a Config with these defaults: port 8080, LT+LT
// triggering, no idle timeout, an 8-deep DB pool, and
// logging off.
func DefaultConfig() Config {
	return Config{
		Port:       8080,
		TrigMode:   0,
		TimeoutMS:  0,
		DBDriver:   "sqlite3",
		DBPoolSize: constants.DefaultDBPoolSize,
		ThreadNum:  4,
		LogLevel:   logging.LevelInfo,
		LogDir:     "./log",
	}
}
