package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ehrlich-b/tinywebd"
	"github.com/ehrlich-b/tinywebd/internal/logging"
)

func main() {
	cfg := tinywebd.DefaultConfig()

	var (
		port      = flag.Int("port", cfg.Port, "Listen port")
		trigMode  = flag.Int("trig-mode", cfg.TrigMode, "Trigger mode: 0=LT+LT 1=LT+ET 2=ET+LT 3=ET+ET")
		timeoutMS = flag.Int("timeout-ms", cfg.TimeoutMS, "Idle connection timeout in ms, <= 0 disables")
		srcDir    = flag.String("src-dir", cfg.SrcDir, "Static file root, defaults to cwd/resources/")
		dbDriver  = flag.String("db-driver", cfg.DBDriver, "database/sql driver name")
		dbDSN     = flag.String("db-dsn", "./tinywebd.db", "Database data source name")
		dbPool    = flag.Int("db-pool", cfg.DBPoolSize, "Database connection pool size")
		threadNum = flag.Int("threads", cfg.ThreadNum, "Worker pool size")
		openLog   = flag.Bool("log", false, "Enable async file logging")
		logDir    = flag.String("log-dir", cfg.LogDir, "Log directory")
		logQueue  = flag.Int("log-queue", 1024, "Async log queue capacity")
		verbose   = flag.Bool("v", false, "Verbose (debug level) logging")
	)
	flag.Parse()

	cfg.Port = *port
	cfg.TrigMode = *trigMode
	cfg.TimeoutMS = *timeoutMS
	cfg.SrcDir = *srcDir
	cfg.DBDriver = *dbDriver
	cfg.DBDSN = *dbDSN
	cfg.DBPoolSize = *dbPool
	cfg.ThreadNum = *threadNum
	cfg.OpenLog = *openLog
	cfg.LogDir = *logDir
	cfg.LogQueueSize = *logQueue
	if *verbose {
		cfg.LogLevel = logging.LevelDebug
	}

	srv, err := tinywebd.NewServer(cfg)
	if err != nil {
		log.Fatalf("tinywebd: %v", err)
	}
	defer srv.Close()

	addr, err := srv.Addr()
	if err != nil {
		log.Fatalf("tinywebd: %v", err)
	}
	fmt.Printf("tinywebd listening on %s (trig-mode=%d)\n", addr, cfg.TrigMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("tinywebd: %v", err)
	}
}
