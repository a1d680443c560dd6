package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/grag/pkg/chunker"
	cfgPkg "github.com/xhad/grag/pkg/config"
	"github.com/xhad/grag/pkg/ingest"
	"github.com/xhad/grag/pkg/llm"
	"github.com/xhad/grag/pkg/rag"
	"github.com/xhad/grag/pkg/scraper"
	"github.com/xhad/grag/pkg/search"
	"github.com/xhad/grag/pkg/store"
	"github.com/xhad/grag/server"
	"go.uber.org/zap"
)

type flags struct {
	configPath string
	docsURL    string
	category   string
	serve      bool
	addr       string
	mode       string
	topK       int
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.docsURL, "docs-url", "", "Documentation URL to scrape and ingest")
	flag.StringVar(&f.category, "category", "docs", "Category stamped on ingested documents")
	flag.BoolVar(&f.serve, "serve", false, "Run the websocket server instead of the chat loop")
	flag.StringVar(&f.addr, "addr", ":8080", "Websocket server address")
	flag.StringVar(&f.mode, "mode", search.ModeHybrid, "Search mode: hybrid, vector or keyword")
	flag.IntVar(&f.topK, "k", 0, "Number of chunks to retrieve (0 uses the configured default)")
	flag.Parse()

	return f
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(f flags) error {
	_ = godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:      cfg.LLM.EmbedModel,
		BaseURL:    cfg.LLM.BaseURL,
		Dimensions: cfg.Graph.VectorDim,
		RateLimit:  cfg.LLM.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	graphStore, err := store.NewWithConfig(ctx, store.GraphStoreConfig{
		URI:            cfg.Graph.URI,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		Database:       cfg.Graph.Database,
		VectorDim:      cfg.Graph.VectorDim,
		VectorIndex:    cfg.Graph.VectorIndex,
		FulltextIndex:  cfg.Graph.FulltextIndex,
		PoolSize:       cfg.Graph.PoolSize,
		AcquireTimeout: time.Duration(cfg.Graph.AcquireTimeout) * time.Millisecond,
		QueryTimeout:   time.Duration(cfg.Graph.QueryTimeout) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize graph store: %v", err)
	}
	defer graphStore.Close(ctx)

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	textChunker := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})

	pipeline := ingest.NewWithConfig(graphStore, embedder, textChunker, ingest.PipelineConfig{
		Workers: cfg.Search.IngestionWorkers,
		Logger:  logger,
	})

	searcher := search.NewWithConfig(graphStore, embedder, search.SearchConfig{
		DefaultK:      cfg.Search.DefaultK,
		DefaultAlpha:  cfg.Search.DefaultAlpha,
		Threshold:     cfg.Search.Threshold,
		AllowDegraded: cfg.Search.AllowDegraded,
		LegTimeout:    time.Duration(cfg.Search.LegTimeout) * time.Millisecond,
		Logger:        logger,
	})

	engine := rag.NewWithConfig(graphStore, searcher, pipeline, chatEngine, rag.EngineConfig{
		CacheCapacity: cfg.Search.CacheCapacity,
		Logger:        logger,
		PoolInUse:     graphStore.Pool().InUse,
	})

	// If docs URL is provided, scrape and ingest documents first
	if f.docsURL != "" {
		if err := ingestDocs(ctx, engine, cfg, f); err != nil {
			return err
		}
	}

	if f.serve {
		ws := server.NewWSServer(engine, server.Config{
			Addr:            f.addr,
			ScrapeMaxDepth:  cfg.Scraper.MaxDepth,
			ScrapeRateLimit: cfg.Scraper.RateLimit,
			Logger:          logger,
		})
		return ws.ListenAndServe()
	}

	return chatLoop(ctx, engine, f)
}

func ingestDocs(ctx context.Context, engine *rag.Engine, cfg *cfgPkg.Config, f flags) error {
	color.Blue("\nStarting documentation pipeline for %s\n", f.docsURL)

	var processedCount int32
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        f.docsURL,
		Category:       f.category,
		MaxDepth:       cfg.Scraper.MaxDepth,
		RateLimit:      cfg.Scraper.RateLimit,
		IgnorePatterns: cfg.Scraper.IgnorePatterns,
		OnProgress: func(url string) {
			atomic.AddInt32(&processedCount, 1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %v", err)
	}

	// Create progress bar for scraping
	scrapingBar := getProgressBar(-1, "📄 Scraping documentation...")

	startTime := time.Now()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				count := atomic.LoadInt32(&processedCount)
				scrapingBar.Set(int(count))
				elapsed := time.Since(startTime).Seconds()
				if elapsed > 0 {
					scrapingBar.Describe(color.BlueString(
						"📄 Scraping documentation... (%.1f pages/sec)", float64(count)/elapsed))
				}
			}
		}
	}()

	docs, err := sc.Scrape(ctx, f.docsURL)
	close(done)
	scrapingBar.Finish()
	if err != nil {
		return fmt.Errorf("failed to scrape documents: %v", err)
	}
	color.Green("\n✓ Scraped %d documents\n", len(docs))

	// Ingestion progress bar
	ingestBar := getProgressBar(len(docs), "💾 Ingesting into graph store...")

	startTime = time.Now()
	for i, doc := range docs {
		if _, err := engine.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to ingest document %s: %v", doc.Source, err)
		}
		ingestBar.Add(1)

		elapsed := time.Since(startTime).Seconds()
		if elapsed > 0 {
			ingestBar.Describe(color.BlueString(
				"💾 Ingesting into graph store... (%.1f docs/sec)", float64(i+1)/elapsed))
		}
	}
	color.Green("\n✓ Ingestion complete\n")

	return nil
}

func chatLoop(ctx context.Context, engine *rag.Engine, f flags) error {
	// Interactive chat loop with colored output
	color.Cyan("\nChat with your knowledge base (type 'exit' to quit, 'stats' for counters)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	opts := engine.Options()
	if f.topK > 0 {
		opts.K = f.topK
	}
	if f.mode != "" {
		opts.Mode = f.mode
	}

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "exit":
			return nil
		case "":
			continue
		case "stats":
			stats, err := engine.Stats(ctx)
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			fmt.Printf("documents=%d chunks=%d queries=%d hits=%d misses=%d avg=%s\n",
				stats.Documents, stats.Chunks, stats.Queries,
				stats.CacheHits, stats.CacheMisses, stats.AverageLatency)
			continue
		}

		// Show spinner while querying
		querySpinner := getSpinner("🔍 Searching documentation...")

		result, err := engine.Query(ctx, question, opts)
		querySpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		if result.Degraded {
			color.Yellow("(partial results: one search leg was unavailable)\n")
		}
		if len(result.Sources) == 0 {
			color.Yellow("No matching documentation found.\n")
			continue
		}

		for i, src := range result.Sources {
			fmt.Printf("  [%d] %.3f %s#%d\n", i+1, src.Score, src.DocumentID, src.ChunkIndex)
		}

		if result.Answer != "" {
			fmt.Print("\n")
			assistantPrompt("Assistant: %s\n", result.Answer)
		}
		if result.CacheHit {
			color.Yellow("(served from cache in %s)\n", result.Elapsed)
		}
	}

	return nil
}
