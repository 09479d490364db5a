package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/jarshade"
	"github.com/meigma/jarshade/cache/disk"
	"github.com/meigma/jarshade/internal/testutil"
)

type config struct {
	mode         string
	classes      int
	methods      int
	resources    int
	resourceSize int
	workers      int
	maxInFlight  int64
	level        int
	fgProfile    string
	duration     time.Duration
	iterations   int
	pprofAddr    string
	cpuProfile   string
	memProfile   string
	traceFile    string
	cacheDir     string
	tempDir      string
	keepTemp     bool
	randomSeed   int64
}

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	data, err := makeJar(cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}
	input := filepath.Join(dir, "input.jar")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		log.Fatal(err)
	}

	s, err := newShader(cfg)
	if err != nil {
		log.Fatal(err)
	}

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, s, data, input, filepath.Join(dir, "out"))
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// runProfile shades the input repeatedly. bytes counts input bytes.
//
//nolint:gocritic // hugeParam acceptable for profiler
func runProfile(cfg config, s *jarshade.Shader, data []byte, input, outDir string) (profileStats, error) {
	ctx := context.Background()
	var stats profileStats
	start := time.Now()
	deadline := start.Add(cfg.duration)

	for i := 0; ; i++ {
		if cfg.iterations > 0 && i >= cfg.iterations {
			break
		}
		if cfg.iterations <= 0 && time.Now().After(deadline) {
			break
		}

		switch cfg.mode {
		case "stream":
			if _, err := s.Shade(ctx, bytes.NewReader(data), int64(len(data)), io.Discard); err != nil {
				return stats, err
			}
		case "file":
			if _, err := s.ShadeFile(ctx, input, outDir); err != nil {
				return stats, err
			}
		default:
			return stats, fmt.Errorf("unknown mode %q", cfg.mode)
		}
		stats.ops++
		stats.bytes += int64(len(data))
	}

	stats.elapsed = time.Since(start)
	return stats, nil
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "stream", "mode: stream (shade to io.Discard) or file (shade to disk, cached if -cache-dir is set)")
	flag.IntVar(&cfg.classes, "classes", 2000, "number of classes in the generated archive")
	flag.IntVar(&cfg.methods, "methods", 8, "methods per generated class")
	flag.IntVar(&cfg.resources, "resources", 64, "number of resource entries")
	flag.IntVar(&cfg.resourceSize, "resource-size", 16<<10, "resource size in bytes")
	flag.IntVar(&cfg.workers, "workers", 0, "entry rewrite workers (0 uses GOMAXPROCS)")
	flag.Int64Var(&cfg.maxInFlight, "max-in-flight", jarshade.DefaultMaxInFlightBytes, "bytes of entry data buffered between rewriting and writing")
	flag.IntVar(&cfg.level, "level", -1, "deflate level for rewritten entries")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "result cache directory (file mode only)")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for the dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		if err := os.MkdirAll(cfg.tempDir, 0o755); err != nil {
			return "", nil, err
		}
		return cfg.tempDir, nil, nil
	}
	dir, err := os.MkdirTemp("", "jarshade-profiler-*")
	if err != nil {
		return "", nil, err
	}
	if cfg.keepTemp {
		log.Printf("dataset in %s", dir)
		return dir, nil, nil
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}

func newShader(cfg config) (*jarshade.Shader, error) {
	opts := []jarshade.Option{
		jarshade.WithWorkers(cfg.workers),
		jarshade.WithMaxInFlightBytes(cfg.maxInFlight),
		jarshade.WithCompressionLevel(cfg.level),
	}
	if cfg.cacheDir != "" {
		c, err := disk.New(cfg.cacheDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, jarshade.WithCache(c))
	}
	return jarshade.New(jarshade.DefaultConfig(), opts...)
}

// makeJar builds an archive shaped like a library that bundles ASM: half of
// the classes live under the relocated root, the rest reference them.
func makeJar(cfg config) ([]byte, error) {
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // deterministic data

	entries := []testutil.JarEntry{
		testutil.Resource("META-INF/MANIFEST.MF", "Manifest-Version: 1.0\n"),
	}
	names := make([]string, cfg.classes)
	for i := range names {
		if i%2 == 0 {
			names[i] = fmt.Sprintf("org/objectweb/asm/pkg%02d/Type%05d", i%16, i)
		} else {
			names[i] = fmt.Sprintf("com/example/plugin/pkg%02d/User%05d", i%16, i)
		}
	}
	for i, name := range names {
		b := testutil.NewClass(name).SourceFile(filepath.Base(name) + ".java")
		peer := names[rng.Intn(len(names))]
		b.AddField(testutil.Field{Name: "peer", Desc: "L" + peer + ";"})
		for m := range cfg.methods {
			other := names[rng.Intn(len(names))]
			b.AddMethod(testutil.Method{
				Name: fmt.Sprintf("m%d", m),
				Desc: "(L" + other + ";I)L" + peer + ";",
				Code: []testutil.Insn{
					testutil.LdcString(other),
					testutil.CheckCast(peer),
					testutil.InvokeStatic(other, "create", "()L"+other+";"),
				},
			})
		}
		if i%5 == 0 {
			b.Signature("Ljava/lang/Object;Ljava/lang/Comparable<L" + peer + ";>;")
		}
		entries = append(entries, testutil.Class(b))
	}

	content := make([]byte, cfg.resourceSize)
	for i := range cfg.resources {
		for j := range content {
			content[j] = byte('a' + rng.Intn(8))
		}
		dir := "org/objectweb/asm/res"
		if i%2 == 1 {
			dir = "com/example/plugin/res"
		}
		entries = append(entries, testutil.JarEntry{
			Name: fmt.Sprintf("%s/data%04d.bin", dir, i),
			Data: append([]byte(nil), content...),
		})
	}
	return testutil.EncodeJar(entries...)
}
