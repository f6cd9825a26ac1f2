// Command bucketset stores short notes in an entry store
// and retrieves them by bucket.
//
// Usage:
//
//	bucketset [-config FILE] put [TEXT...]
//	bucketset [-config FILE] get ADDR
//	bucketset [-config FILE] key [TEXT...]
//	bucketset [-config FILE] bucket KEY
//	bucketset [-config FILE] all
//	bucketset [-config FILE] serve [-addr ADDR] [-metrics ADDR]
//
// See config.go for the format of the config file.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bobg/subcmd"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/bucket"
	"github.com/bobg/bucketset/store"
	_ "github.com/bobg/bucketset/store/file"
	_ "github.com/bobg/bucketset/store/gcs"
	_ "github.com/bobg/bucketset/store/logging"
	_ "github.com/bobg/bucketset/store/lru"
	_ "github.com/bobg/bucketset/store/mem"
	_ "github.com/bobg/bucketset/store/metrics"
	_ "github.com/bobg/bucketset/store/pebble"
	_ "github.com/bobg/bucketset/store/pg"
	_ "github.com/bobg/bucketset/store/replica"
	_ "github.com/bobg/bucketset/store/rpc"
	_ "github.com/bobg/bucketset/store/sqlite3"
	"github.com/bobg/bucketset/validate"
)

type maincmd struct {
	host   bucketset.Store // as configured
	s      *validate.Store // host, with marker rules enforced
	x      *bucket.Index[note]
	logger *slog.Logger
}

func main() {
	configPath := flag.String("config", "bucketset.jsonc", "path to config file (JSON with comments, or YAML)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("Config value not set")
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host, err := store.FromConfig(ctx, conf.store)
	if err != nil {
		log.Fatalf("Creating store: %s", err)
	}

	c, err := newMaincmd(host, conf)
	if err != nil {
		log.Fatal(err)
	}

	if err = subcmd.Run(ctx, c, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func newMaincmd(host bucketset.Store, conf *config) (maincmd, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: conf.logLevel}))

	reg := new(bucket.Registry)
	if err := reg.Register(noteType, noteBucketType); err != nil {
		return maincmd{}, err
	}
	rules := new(validate.Registry)
	reg.Install(rules)
	s := validate.NewStore(host, rules)

	strategy, err := noteStrategy(conf.bits)
	if err != nil {
		return maincmd{}, err
	}
	x, err := bucket.New(s, reg, noteType, strategy,
		bucket.WithPolicy(conf.policy),
		bucket.WithConcurrency(conf.concurrency),
		bucket.WithLogger(logger),
	)
	if err != nil {
		return maincmd{}, err
	}

	return maincmd{host: host, s: s, x: x, logger: logger}, nil
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"all", c.all, nil,
		"bucket", c.bucket, nil,
		"get", c.get, nil,
		"key", c.key, nil,
		"put", c.put, nil,
		"serve", c.serve, subcmd.Params(
			"addr", subcmd.String, ":2969", "address to serve the store on",
			"metrics", subcmd.String, "", "address to serve Prometheus metrics on (default: none)",
		),
	)
}
