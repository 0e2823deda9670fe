package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/decaygraph/internal/storage"
	"github.com/OFFIS-RIT/decaygraph/internal/util"
	"github.com/OFFIS-RIT/decaygraph/pkg/catalog"
	"github.com/OFFIS-RIT/decaygraph/pkg/dataset"
	"github.com/OFFIS-RIT/decaygraph/pkg/event"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader/columnar"
	ioloader "github.com/OFFIS-RIT/decaygraph/pkg/loader/io"
	s3loader "github.com/OFFIS-RIT/decaygraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger"
	"github.com/OFFIS-RIT/decaygraph/pkg/logger/console"
	"github.com/OFFIS-RIT/decaygraph/pkg/store"
	fsstore "github.com/OFFIS-RIT/decaygraph/pkg/store/fs"
	pgxstore "github.com/OFFIS-RIT/decaygraph/pkg/store/pgx"
	s3store "github.com/OFFIS-RIT/decaygraph/pkg/store/s3"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fileExt = ".json"

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "builder",
	})
	logger.Init(consoleLogger)

	directives, err := catalog.ParseDirectives(util.GetEnvString("NORMALIZE", ""))
	if err != nil {
		logger.Fatal("Invalid normalization directives", "err", err)
	}

	cfg := dataset.Config{
		NodeFeatures:    util.GetEnvList("NODE_FEATURES"),
		IgnoreFeatures:  util.GetEnvList("IGNORE_FEATURES"),
		EdgeFeatures:    util.GetEnvList("EDGE_FEATURES"),
		GlobalFeatures:  util.GetEnvList("GLOBAL_FEATURES"),
		StrictFeatures:  util.GetEnvBool("STRICT_FEATURES", false),
		Mode:            catalog.Mode(util.GetEnvString("MODE", string(catalog.ModeParticle))),
		SubsetUnmatched: util.GetEnvBool("SUBSET_UNMATCHED", true),
		Samples:         util.GetEnvInt("SAMPLES", 0),
		NFiles:          util.GetEnvInt("N_FILES", 0),
		Normalize:       directives,
		Seed:            uint64(util.GetEnvInt64("SEED", 0)),
		Overwrite:       util.GetEnvBool("OVERWRITE", false),
	}

	// s3 client is created lazily, only source or cache may need it
	var s3Client *s3.Client
	getS3Client := func() *s3.Client {
		if s3Client != nil {
			return s3Client
		}
		client, err := storage.NewS3Client(ctx, storage.S3ParamsFromEnv())
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
		s3Client = client
		return s3Client
	}

	// source files
	var files []loader.SourceFile
	if bucket := util.GetEnvString("SOURCE_BUCKET", ""); bucket != "" {
		l := s3loader.NewS3SourceLoaderWithClient(bucket, getS3Client())
		files, err = l.Discover(ctx, util.GetEnvString("SOURCE_PREFIX", ""), fileExt)
	} else {
		l := ioloader.NewIOSourceLoader()
		files, err = l.Discover(util.GetEnvString("SOURCE_DIR", "."), fileExt)
	}
	if err != nil {
		logger.Fatal("Could not list source files", "err", err)
	}

	// graph cache
	var cache store.GraphStore
	switch backend := util.GetEnvString("CACHE_BACKEND", "fs"); backend {
	case "fs":
		cache, err = fsstore.NewFSGraphStore(util.GetEnvString("CACHE_DIR", "graphs"))
	case "s3":
		cache, err = s3store.NewS3GraphStore(util.GetEnv("CACHE_BUCKET"), util.GetEnvString("CACHE_PREFIX", ""), getS3Client())
	case "pgx":
		pgConn, perr := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
		if perr != nil {
			logger.Fatal("Unable to connect to database", "err", perr)
		}
		defer pgConn.Close()
		cache, err = pgxstore.NewGraphDBStoreWithConnection(ctx, pgConn)
	default:
		logger.Fatal("Unknown cache backend", "backend", backend)
	}
	if err != nil {
		logger.Fatal("Could not open graph cache", "err", err)
	}

	open := func(ctx context.Context, f loader.SourceFile) (event.ColumnReader, error) {
		return columnar.Open(ctx, f)
	}

	ds, err := dataset.New(cfg, files, open, cache)
	if err != nil {
		logger.Fatal("Invalid dataset configuration", "err", err)
	}
	if err := ds.Build(ctx); err != nil {
		logger.Fatal("Dataset build failed", "fingerprint", ds.Fingerprint(), "err", err)
	}

	n, err := ds.Len()
	if err != nil {
		logger.Fatal("Dataset not readable", "err", err)
	}
	logger.Info("Dataset ready", "fingerprint", ds.Fingerprint(), "graphs", n)
}
