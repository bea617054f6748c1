package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/meridian-robotics/navcore/internal/api"
	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/config"
	"github.com/meridian-robotics/navcore/internal/navdb"
	"github.com/meridian-robotics/navcore/internal/navlog"
	"github.com/meridian-robotics/navcore/internal/pipeline"
	"github.com/meridian-robotics/navcore/internal/timeutil"
	"github.com/meridian-robotics/navcore/internal/units"
	"github.com/meridian-robotics/navcore/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "navcore.db", "Run-log database path (empty disables persistence)")
	configPath    = flag.String("config", "", "Tuning config path (JSON); defaults to "+config.DefaultConfigPath+" when present")
	migrationsDir = flag.String("migrations", "migrations", "Schema migrations directory")
	displayUnits  = flag.String("units", units.MPS, "Display units for API speeds")
	replayPath    = flag.String("replay", "", "Replay a JSONL run log offline and exit")
)

// Initial pose uncertainty when no survey fix is available: the robot is
// assumed near the origin but the filter should trust early measurements.
var defaultPriorVar = [3]float64{0.25, 0.25, 0.1}

func loadTuning() *config.TuningConfig {
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultTuningConfig()
		}
		path = config.DefaultConfigPath
	}

	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load tuning config %s: %v", path, err)
	}
	// Loaded values overlay the shipped defaults so partial files work.
	return config.DefaultTuningConfig().Merge(cfg)
}

func replay(p *pipeline.Pipeline, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open replay log: %v", err)
	}
	defer f.Close()

	stats, err := navlog.Replay(p, f)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	log.Printf("Replayed %d records, %d ticks, %d dropped, final t=%.3fs",
		stats.Records, stats.Ticks, stats.Dropped, stats.LastTime)

	out, err := json.MarshalIndent(p.Status(), "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal final status: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))
}

func main() {
	flag.Parse()
	log.Printf("navcore %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q; valid values: %s", *displayUnits, units.GetValidUnitsString())
	}

	cfg := loadTuning()
	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	var runLog *navdb.DB
	if *dbFile != "" {
		runLog, err = navdb.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer runLog.Close()

		if err := runLog.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			log.Fatalf("Failed to marshal tuning config: %v", err)
		}
		if err := runLog.CreateSession(p.SessionID(), string(cfgJSON)); err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
		p.SetRecorder(runLog)
	}

	if err := p.Start(belief.Pose{}, defaultPriorVar, units.Seconds(0)); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	log.Printf("Session %s started", p.SessionID())

	if *replayPath != "" {
		replay(p, *replayPath)
		return
	}

	clock := timeutil.NewRealClock()
	period := time.Duration(cfg.GetControlPeriodSec() * float64(time.Second))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// control tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := p.Tick(clock.Monotonic()); err != nil {
					log.Printf("control tick: %v", err)
				}
			case <-ctx.Done():
				log.Printf("control loop terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(p, runLog, *displayUnits).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
