package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/spf13/viper"
	"github.com/usnistgov/evsel"
	"github.com/usnistgov/evsel/internal/calibdb"
	"github.com/usnistgov/evsel/internal/chsink"
	"github.com/usnistgov/evsel/internal/monitor"
	"github.com/usnistgov/evsel/internal/npysink"
	"github.com/usnistgov/evsel/internal/zmqpub"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// ensureFile expands environment variables in dir and creates dir/filename,
// with any missing parents, unless it exists already.
func ensureFile(dir, filename string) (string, error) {
	dir = os.ExpandEnv(dir)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", err
	}
	fullname := filepath.Join(dir, filename)
	f, err := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
	if err != nil {
		return "", err
	}
	return fullname, f.Close()
}

// setupViper sets up the viper configuration manager: says where to find config
// files and the filename and suffix. Sets some defaults.
func setupViper(configFile string) error {
	evsel.SetConfigDefaults()
	viper.SetDefault("calibration.file", "")
	viper.SetDefault("calibration.mysql.port", 3306)
	viper.SetDefault("sinks.npy.dir", "")
	viper.SetDefault("sinks.zmq.port", 0)
	viper.SetDefault("sinks.clickhouse.enabled", false)
	viper.SetDefault("monitor.addr", "")

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %s", err)
		}
		return nil
	}

	dotEvsel := filepath.Join("$HOME", ".evsel")
	if _, err := ensureFile(dotEvsel, "config.yaml"); err != nil {
		return err
	}

	viper.SetConfigName("config")
	viper.AddConfigPath(filepath.FromSlash("/etc/evsel"))
	viper.AddConfigPath(os.ExpandEnv(dotEvsel))
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

// rotatingLogger logs to fname, rotating it at 10 MB and keeping 4 gzipped
// generations for up to 180 days.
func rotatingLogger(fname string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   fname,
		MaxSize:    10,
		MaxBackups: 4,
		MaxAge:     180,
		Compress:   true,
	}, "", log.LstdFlags)
}

// openStore returns the configured calibration store.
func openStore() (evsel.CalibrationStore, error) {
	if fname := viper.GetString("calibration.file"); fname != "" {
		return calibdb.LoadFile(fname)
	}
	if viper.IsSet("calibration.mysql.host") {
		var cfg calibdb.MySQLConfig
		if err := viper.UnmarshalKey("calibration.mysql", &cfg); err != nil {
			return nil, err
		}
		return calibdb.ConnectMySQL(cfg)
	}
	return nil, errors.New("no calibration source: set calibration.file or calibration.mysql.host")
}

// openSinks starts every configured record sink.
func openSinks() ([]evsel.RecordSink, error) {
	var sinks []evsel.RecordSink
	if dir := viper.GetString("sinks.npy.dir"); dir != "" {
		s, err := npysink.New(dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if port := viper.GetInt("sinks.zmq.port"); port > 0 {
		p, err := zmqpub.New(port)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}
	if viper.GetBool("sinks.clickhouse.enabled") {
		var cfg chsink.Config
		if err := viper.UnmarshalKey("sinks.clickhouse", &cfg); err != nil {
			return nil, err
		}
		db := chsink.StartConnection(cfg, chsink.NewActivity())
		if !db.IsConnected() {
			evsel.ProblemLogger.Printf("ClickHouse sink is not connected: %v", db.Err())
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}

// inputFile is the JSON layout of one batch on disk.
type inputFile struct {
	Batch      evsel.Batch
	Collisions []evsel.Collision
}

func readInput(fname string) (*inputFile, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	in := new(inputFile)
	if err := json.NewDecoder(f).Decode(in); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return in, nil
}

// pingDatabases checks every configured database server and reports the first failure.
func pingDatabases() error {
	if viper.IsSet("calibration.mysql.host") {
		var cfg calibdb.MySQLConfig
		if err := viper.UnmarshalKey("calibration.mysql", &cfg); err != nil {
			return err
		}
		store, err := calibdb.ConnectMySQL(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Calibration database at %s:%d is alive.\n", cfg.Host, cfg.Port)
		store.Close()
	}
	if viper.GetBool("sinks.clickhouse.enabled") {
		var cfg chsink.Config
		if err := viper.UnmarshalKey("sinks.clickhouse", &cfg); err != nil {
			return err
		}
		return chsink.PingServer(cfg)
	}
	return nil
}

func main() {
	os.Exit(run())
}

// run does the work of main and returns the exit status, so deferred cleanup
// happens before the process exits.
func run() int {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	evsel.Build.Date = buildDate
	evsel.Build.Githash = githash
	evsel.Build.Gitdate = gitdate
	evsel.Build.Summary = fmt.Sprintf("evsel version %s (git commit %s of %s)", evsel.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		evsel.Build.Host = host
	} else {
		evsel.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	pingDB := flag.Bool("pingdb", false, "check that the configured databases answer, then quit")
	configFile := flag.String("config", "", "read configuration from this file instead of the standard locations")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	memprofile := flag.String("memprofile", "", "write memory profile to given file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] batch.json ...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is evsel version %s\n", evsel.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		return 0
	}

	banner := fmt.Sprintf("\nThis is evsel version %s (git commit %s)\n", evsel.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Print(err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Print(err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	logdir := filepath.Join("$HOME", ".evsel", "logs")
	problemname, err := ensureFile(logdir, "problems.log")
	if err != nil {
		log.Print(err)
		return 1
	}
	logname, err := ensureFile(logdir, "updates.log")
	if err != nil {
		log.Print(err)
		return 1
	}
	evsel.ProblemLogger = rotatingLogger(problemname)
	evsel.UpdateLogger = rotatingLogger(logname)
	fmt.Printf("Logging problems to %s\n", problemname)
	fmt.Printf("Logging batches  to %s\n\n", logname)
	evsel.UpdateLogger.Printf("\n\n\n\n%s", banner)

	if err := setupViper(*configFile); err != nil {
		log.Print(err)
		return 1
	}
	if *pingDB {
		if err := pingDatabases(); err != nil {
			fmt.Println(err)
			return 1
		}
		return 0
	}
	cfg, err := evsel.LoadConfig()
	if err != nil {
		log.Print(err)
		return 1
	}
	store, err := openStore()
	if err != nil {
		log.Print(err)
		return 1
	}
	sinks, err := openSinks()
	if err != nil {
		log.Print(err)
		return 1
	}

	mon := monitor.New()
	counts := evsel.NewMapCounter()
	if addr := viper.GetString("monitor.addr"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, mon.Handler()); err != nil {
				evsel.ProblemLogger.Printf("Metrics server on %s stopped: %v", addr, err)
			}
		}()
	}

	proc := evsel.NewProcessor(cfg, evsel.NewCalibrationCache(store), evsel.MultiCounter{counts, mon}, sinks...)
	ctx := context.Background()
	status := 0
	for _, fname := range flag.Args() {
		in, err := readInput(fname)
		if err != nil {
			evsel.ProblemLogger.Print(err)
			fmt.Println(err)
			status = 1
			continue
		}
		result, err := proc.ProcessBatch(ctx, &in.Batch, in.Collisions)
		if result != nil {
			mon.ObserveBatch(result)
			fmt.Printf("%s: run %d, %d BCs, %d events, %d accepted\n",
				fname, result.Run, len(result.BCs), len(result.Events), result.Accepted)
		}
		if err != nil {
			evsel.ProblemLogger.Printf("%s: %v", fname, err)
			fmt.Printf("%s: %v\n", fname, err)
			status = 1
		}
	}
	if err := proc.Close(); err != nil {
		evsel.ProblemLogger.Printf("closing sinks: %v", err)
	}
	fmt.Println(counts)
	if *memprofile != "" {
		if err := writeHeapProfile(*memprofile); err != nil {
			log.Print(err)
			status = 1
		}
	}
	return status
}

func writeHeapProfile(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}
