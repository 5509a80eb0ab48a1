package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"

	"git.fiblab.net/sim/mapedit/editor"
	"git.fiblab.net/sim/mapedit/editor/derive"
	"git.fiblab.net/sim/mapedit/editor/rawmap"
	"git.fiblab.net/sim/mapedit/persist"
)

var (
	// 配置信息
	mongoURI      = flag.String("mongo_uri", "", "mongo db uri")
	mapPathStr    = flag.String("map", "", "raw map source, empty starts a blank map [format: {fspath} or {db}.{col}]")
	savePathStr   = flag.String("save-to", "", "raw map destination, empty disables saving [format: {fspath} or {db}.{col}]")
	exportPathStr = flag.String("export-derived", "", "derived map pb output file path (empty means disable export)")
	scriptPathStr = flag.String("script", "", "yaml edit script to run")
	configPathStr = flag.String("config", "", "editor config file path")
	logLevel      = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "", "pprof/metrics listening address (empty means disable)")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}

	cfg, err := loadConfig(*configPathStr)
	if err != nil {
		logrus.Fatalf("invalid config: %s", err)
	}
	mapPath, err := persist.NewPath(*mapPathStr)
	if err != nil {
		logrus.Fatalf("invalid map path: %s", err)
	}
	savePath, err := persist.NewPath(*savePathStr)
	if err != nil {
		logrus.Fatalf("invalid save path: %s", err)
	}

	ctx := context.Background()
	var m *rawmap.Map
	if mapPath == nil {
		m = rawmap.New()
	} else {
		if m, err = persist.Load(ctx, *mongoURI, mapPath); err != nil {
			logrus.Fatalf("failed to load map: %s", err)
		}
	}

	e := editor.New(cfg, m, derive.NewLaneResolver())
	defer e.Close()

	// 优雅退出
	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go watchShutdown(signalCh, e, os.Exit)

	if *pprofAddr != "" {
		// 启动pprof与metrics
		startHTTPDebugger(*pprofAddr)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(e)
		return
	}

	if *scriptPathStr != "" {
		if err := runScript(e, *scriptPathStr); err != nil {
			logrus.Fatalf("script failed: %s", err)
		}
	}

	// 等待最后一次编辑的派生结果
	if _, err := e.SyncDerived(); err != nil {
		if gen, derr := e.LastDeriveError(); derr != nil {
			log.Errorf("derivation of generation %d failed: %v", gen, derr)
		} else {
			log.Errorf("failed to wait for derivation: %v", err)
		}
	} else if sn, ok := e.Derived(); ok {
		log.Infof("derivation of generation %d published: %d lanes, %d roads, %d junctions",
			sn.Generation, len(sn.Map.Lanes), len(sn.Map.Roads), len(sn.Map.Junctions))
	}

	if savePath != nil {
		if err := persist.Save(ctx, e.Snapshot(), *mongoURI, savePath); err != nil {
			logrus.Fatalf("failed to save map: %s", err)
		}
	}
	if *exportPathStr != "" {
		sn, ok := e.Derived()
		if !ok {
			logrus.Fatalf("no derived map to export")
		}
		if err := persist.ExportDerived(sn.Map, *exportPathStr); err != nil {
			logrus.Fatalf("failed to export derived map: %s", err)
		}
	}
	log.Infof("done: %d intersections, %d roads", m.IntersectionCount(), m.RoadCount())
}

// 首个信号后关闭编辑器并退出，第二个信号强制结束
func watchShutdown(signalCh <-chan os.Signal, e *editor.Editor, exit func(int)) {
	<-signalCh
	log.Info("stopping...")
	go func() {
		<-signalCh
		exit(1) // 强制结束
	}()
	// 丢弃在途派生并停止worker
	e.Close()
	exit(0)
}
