package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/groundrag/config"
	"github.com/BaSui01/groundrag/llm/embedding"
	"github.com/BaSui01/groundrag/rag"
	"github.com/BaSui01/groundrag/rag/loader"
)

// =============================================================================
// 📥 语料写入
// =============================================================================

// ingestFiles 读取片段文件，分批嵌入后写入语料集合，返回写入的片段数
func ingestFiles(ctx context.Context, registry *loader.LoaderRegistry, embedder embedding.Provider, store rag.VectorStore, files []string, batch int, logger *zap.Logger) (int, error) {
	if batch <= 0 {
		batch = 64
	}

	total := 0
	for _, file := range files {
		docs, err := registry.Load(ctx, file)
		if err != nil {
			return total, err
		}

		for start := 0; start < len(docs); start += batch {
			end := min(start+batch, len(docs))
			chunk := docs[start:end]

			texts := make([]string, len(chunk))
			for i, d := range chunk {
				texts[i] = d.Content
			}
			vecs, err := embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return total, fmt.Errorf("embed %s [%d:%d]: %w", file, start, end, err)
			}
			if len(vecs) != len(chunk) {
				return total, fmt.Errorf("embed %s [%d:%d]: got %d vectors for %d chunks", file, start, end, len(vecs), len(chunk))
			}
			for i := range chunk {
				chunk[i].Embedding = vecs[i]
			}

			if err := store.AddDocuments(ctx, chunk); err != nil {
				return total, fmt.Errorf("store %s [%d:%d]: %w", file, start, end, err)
			}
			total += len(chunk)
		}

		logger.Info("Corpus file ingested",
			zap.String("file", file),
			zap.Int("chunks", len(docs)),
		)
	}
	return total, nil
}

// =============================================================================
// 🖥️ ingest 命令
// =============================================================================

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	batch := fs.Int("batch", 0, "Chunks embedded per request (default vector_store.ingest_batch)")
	_ = fs.Parse(args)

	loaderCfg := config.NewLoader().WithValidator((*config.Config).Validate)
	if *configPath != "" {
		loaderCfg = loaderCfg.WithConfigPath(*configPath)
	}
	cfg, err := loaderCfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	files := fs.Args()
	if len(files) == 0 {
		files = cfg.VectorStore.SeedFiles
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No input files: pass chunk files or set vector_store.seed_files")
		return 1
	}
	if cfg.VectorStore.Backend == "" || cfg.VectorStore.Backend == "memory" {
		fmt.Fprintln(os.Stderr, "The memory vector store does not outlive this process; use vector_store.seed_files with 'serve' instead")
		return 1
	}
	if *batch <= 0 {
		*batch = cfg.VectorStore.IngestBatch
	}

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openVectorStore(cfg.VectorStore, cfg.VectorStore.CorpusCollection, logger)
	if err != nil {
		logger.Error("Failed to open vector store", zap.Error(err))
		return 1
	}
	embedder := newEmbedder(cfg, newRetryer(cfg.LLM, logger), nil, logger)

	start := time.Now()
	n, err := ingestFiles(ctx, loader.NewLoaderRegistry(), embedder, store, files, *batch, logger)
	if err != nil {
		logger.Error("Ingest failed", zap.Int("ingested", n), zap.Error(err))
		return 1
	}

	logger.Info("Ingest completed",
		zap.Int("chunks", n),
		zap.Int("files", len(files)),
		zap.String("collection", cfg.VectorStore.CorpusCollection),
		zap.Duration("duration", time.Since(start)),
	)
	return 0
}
