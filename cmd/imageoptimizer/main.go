// Command imageoptimizer recompresses images given as files or URLs and
// prints one JSON report per input.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	imageoptimizer "github.com/Skryldev/image-optimizer"
	"github.com/Skryldev/image-optimizer/adapters/fetch"
	"github.com/Skryldev/image-optimizer/adapters/storage"
	"github.com/Skryldev/image-optimizer/adapters/vips"
	"github.com/Skryldev/image-optimizer/cache"
	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	"github.com/Skryldev/image-optimizer/hooks"
	"github.com/Skryldev/image-optimizer/search"
)

var log = logrus.New()

var (
	flagConfig  = flag.String("config", "", "dotenv file with IMGOPT_* settings")
	flagForce   = flag.Bool("force", false, "re-encode images already in the target format")
	flagQuality = flag.Int("quality", 0, "encode at exactly this quality (manual retry)")
	flagOut     = flag.Bool("out", false, "persist encoded images through the configured storage")
	flagDiff    = flag.Bool("diff", false, "persist diff images next to the encoded output")
	flagCache   = flag.Bool("cache", false, "reuse outcomes of identical inputs within this run")
	flagDumpFSM = flag.Bool("dump-fsm", false, "write graphviz src of the search state machine and exit")
	flagVerbose = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	if *flagDumpFSM {
		fmt.Println(fsm.Visualize(search.Machine()))
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed, err := run(ctx, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
	if failed > 0 {
		log.Errorf("%d of %d inputs failed", failed, flag.NArg())
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: imageoptimizer [flags] file-or-url...")
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return 0, err
	}
	if *flagVerbose {
		cfg.LogLevel = "debug"
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	entry := logrus.NewEntry(log)
	ctx = hooks.WithLogEntry(ctx, entry)

	opt, err := imageoptimizer.New(cfg)
	if err != nil {
		return 0, err
	}
	logger := hooks.NewLogrusLogger(entry)
	metrics := hooks.NewInMemoryMetrics()
	opt.SetLogger(logger)
	opt.SetMetrics(metrics)
	opt.AddHook(hooks.NewLoggingHook(logger))
	opt.AddHook(hooks.NewMetricsHook(metrics))

	if cfg.Backend == config.BackendVips {
		backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: cfg.DefaultQuality})
		defer backend.Shutdown()
		vips.Register(opt.Registry(), backend)
	}

	var store core.StorageAdapter
	if *flagOut || *flagDiff {
		if store, err = storage.Open(ctx, cfg); err != nil {
			return 0, err
		}
	}

	opts := core.ConvertOptions{Force: *flagForce, Quality: *flagQuality, NoDiff: !*flagDiff}
	objects, fetchErrs := fetchAll(ctx, fetch.New(cfg.Fetch), args, cfg.BatchConcurrency)

	items := make([]item, len(args))
	for i, obj := range objects {
		items[i] = item{name: objectName(obj, args[i]), err: fetchErrs[i]}
	}

	if *flagCache || cfg.Cache.Enabled {
		outcomes, err := cache.NewLRU(cfg.Cache.MaxBytes, cfg.Cache.TTL)
		if err != nil {
			return 0, err
		}
		for i, obj := range objects {
			if obj == nil {
				continue
			}
			out, hit, err := outcomes.Convert(ctx, opt, obj.Name, obj.Data, opts)
			entry.WithField("name", obj.Name).WithField("hit", hit).Debug("outcome cache")
			items[i].outcome, items[i].err = out, err
		}
	} else {
		var sources []core.Source
		var index []int
		for i, obj := range objects {
			if obj != nil {
				sources = append(sources, obj.Source())
				index = append(index, i)
			}
		}
		for j, br := range opt.Batch(ctx, sources, opts) {
			it := &items[index[j]]
			if it.err = br.Err; it.err == nil {
				it.outcome, _ = core.OutcomeOf(br.Result)
			}
		}
	}

	failed := 0
	enc := json.NewEncoder(os.Stdout)
	for _, it := range items {
		if it.err == nil && store != nil {
			it.err = persist(ctx, store, it.name, it.outcome)
		}
		rep := it.report()
		if it.err != nil {
			failed++
		} else if !rep.Accepted {
			entry.WithField("name", rep.Name).WithField("ssim", rep.SSIMScore).
				Warn("no candidate cleared the similarity floor; flagged for manual review")
		}
		if err := enc.Encode(rep); err != nil {
			return failed, err
		}
	}

	snap := metrics.Snapshot()
	entry.WithFields(logrus.Fields{
		"outcomes":  snap.Outcomes,
		"fallbacks": snap.Fallbacks,
		"bytes_in":  snap.TotalThroughputB,
	}).Info("done")
	return failed, nil
}

type item struct {
	name    string
	outcome *core.Outcome
	err     error
}

func (it item) report() core.Report {
	switch {
	case it.err != nil:
		return core.Report{Name: it.name, Error: it.err.Error()}
	case it.outcome == nil:
		return core.Report{Name: it.name, Error: "no result"}
	}
	rep := it.outcome.Report()
	rep.Name = it.name
	return rep
}

func fetchAll(ctx context.Context, f fetch.Fetcher, args []string, limit int) ([]*fetch.Object, []error) {
	objects := make([]*fetch.Object, len(args))
	errs := make([]error, len(args))
	var g errgroup.Group
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			objects[i], errs[i] = f.Fetch(ctx, arg)
			return nil
		})
	}
	_ = g.Wait()
	return objects, errs
}

func objectName(obj *fetch.Object, arg string) string {
	if obj != nil && obj.Name != "" {
		return obj.Name
	}
	return path.Base(arg)
}

func persist(ctx context.Context, store core.StorageAdapter, name string, out *core.Outcome) error {
	if out == nil {
		return nil
	}
	base := strings.TrimSuffix(name, path.Ext(name))
	c := out.Candidate
	if *flagOut {
		meta := map[string]string{
			"content-type": "image/" + string(c.Format),
			"strategy":     c.StrategyTag,
			"quality":      strconv.Itoa(c.Quality()),
			"ssim":         strconv.FormatFloat(c.SSIM(), 'f', 6, 64),
			"accepted":     strconv.FormatBool(c.Accepted()),
		}
		key := core.StorageKey{Path: base + "." + extension(c.Format)}
		if err := store.Put(ctx, key, bytes.NewReader(c.Encoded), meta); err != nil {
			return err
		}
		hooks.Entry(ctx).WithField("key", key.Path).Debug("stored candidate")
	}
	if *flagDiff && len(out.Diff) > 0 {
		key := core.StorageKey{Path: base + ".diff.png"}
		if err := store.Put(ctx, key, bytes.NewReader(out.Diff), map[string]string{"content-type": "image/png"}); err != nil {
			return err
		}
	}
	return nil
}

func extension(f core.Format) string {
	if f == core.FormatJPEG {
		return "jpg"
	}
	return string(f)
}
