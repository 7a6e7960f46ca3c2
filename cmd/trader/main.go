package main

import (
	"flag"
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/clock"
	"main/internal/engine"
	"main/internal/ops"
	"main/internal/reconcile"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %+v", err)
		os.Exit(1)
	}

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "quant/trader",
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("profiler start failed: %+v", err)
			os.Exit(1)
		}
		defer profiler.Stop()
	}

	var rec reconcile.Reconciler
	if cfg.Reconcile.Enabled {
		pg, err := reconcile.NewPostgres(cfg.Reconcile.Postgres)
		if err != nil {
			logs.Errorf("reconciler init failed: %+v", err)
			os.Exit(1)
		}
		defer pg.Close()
		rec = pg
	}

	simClock := clock.NewSimClock()
	eng := engine.New(cfg, simClock)
	if err := eng.Start(rec); err != nil {
		logs.Errorf("engine start failed: %+v", err)
		os.Exit(1)
	}

	<-sys.Shutdown()

	if err := eng.Stop(); err != nil {
		logs.Errorf("engine stopped with error: %+v", err)
		os.Exit(1)
	}
}
