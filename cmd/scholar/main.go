package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/studykit/scholar/internal/config"
	"github.com/studykit/scholar/internal/corpus"
	"github.com/studykit/scholar/internal/embed"
	"github.com/studykit/scholar/internal/mcp"
	"github.com/studykit/scholar/internal/rerank"
	"github.com/studykit/scholar/internal/search"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "search":
		if err := runSearch(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("scholar %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type searchFlags struct {
	configPath string
	mode       string
	topK       int
	expand     bool
	window     int
	query      []string
}

func parseSearchFlags(args []string) (searchFlags, error) {
	f := searchFlags{topK: 0, window: 0}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--expand" || arg == "-e":
			f.expand = true
		case arg == "--config":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--config requires a path")
			}
			f.configPath = args[i]
		case arg == "--mode" || arg == "-m":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--mode requires a value")
			}
			f.mode = args[i]
		case arg == "--top-k" || arg == "-k":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--top-k requires a number")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return f, fmt.Errorf("invalid --top-k value %q", args[i])
			}
			f.topK = n
		case arg == "--window" || arg == "-w":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--window requires a number")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return f, fmt.Errorf("invalid --window value %q", args[i])
			}
			f.window = n
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.query = append(f.query, arg)
		}
	}

	if len(f.query) == 0 {
		return f, fmt.Errorf("usage: scholar search <query> [--mode hybrid|lexical|semantic] [--top-k N] [--expand] [--window N]")
	}
	return f, nil
}

func runSearch(args []string) error {
	f, err := parseSearchFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng, _, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := search.DefaultOptions()
	opts.TopK = cfg.Retrieval.TopK
	opts.ContextWindow = cfg.Retrieval.ContextWindow
	if f.mode != "" {
		mode, err := search.ParseMode(f.mode)
		if err != nil {
			return err
		}
		opts.Mode = mode
	}
	if f.topK > 0 {
		opts.TopK = f.topK
	}
	if f.expand {
		opts.ExpandContext = true
	}
	if f.window > 0 {
		opts.ContextWindow = f.window
	}

	resp, err := eng.Search(ctx, strings.Join(f.query, " "), opts)
	if err != nil {
		return err
	}

	printResults(resp)
	return nil
}

func printResults(resp *search.Response) {
	if len(resp.Degraded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: degraded stages: %s\n", strings.Join(resp.Degraded, ", "))
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}

	for i, r := range resp.Results {
		if r.Source == "neighbor" {
			fmt.Printf("    ~ %s [%s]\n", r.Passage.Breadcrumb, r.Passage.ID)
			fmt.Printf("      %s\n", snippet(r.Passage.Text, 200))
			continue
		}
		fmt.Printf("%2d. %s [%s] (%s, score %.4f, %s)\n",
			i+1, r.Passage.Breadcrumb, r.Passage.ID, r.Passage.Kind, r.Score, r.Source)
		fmt.Printf("    %s\n", snippet(r.Passage.Text, 300))
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func runStats(args []string) error {
	configPath := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ix, err := loadCorpus(cfg)
	if err != nil {
		return err
	}

	books := map[string]int{}
	kinds := map[string]int{}
	for _, p := range ix.Passages() {
		books[p.SourceID]++
		kinds[string(p.Kind)]++
	}

	fmt.Printf("Passages: %d\n", ix.Len())
	fmt.Printf("Fingerprint: %s\n", ix.Fingerprint())

	fmt.Println("\nBooks:")
	for _, k := range sortedKeys(books) {
		fmt.Printf("  %-40s %d\n", k, books[k])
	}
	fmt.Println("\nKinds:")
	for _, k := range sortedKeys(kinds) {
		fmt.Printf("  %-20s %d\n", k, kinds[k])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runMCP(args []string) error {
	configPath := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng, ix, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcp.NewServer(mcp.ServerConfig{
		Engine:  eng,
		Corpus:  ix,
		Version: version,
	})
	return mcp.ServeStdio(srv)
}

func loadCorpus(cfg config.Config) (*corpus.Index, error) {
	if cfg.CorpusPath == "" {
		return nil, fmt.Errorf("no corpus configured (set corpus_path or SCHOLAR_CORPUS)")
	}
	passages, err := corpus.LoadJSONL(cfg.CorpusPath, cfg.Subject)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("corpus %s has no passages", cfg.CorpusPath)
	}
	return corpus.Load(passages)
}

// buildEngine assembles the search engine from configuration. Semantic
// and rerank backends are optional: a backend that cannot be built is
// reported on stderr and skipped, leaving the engine in lexical-only or
// no-rerank form.
func buildEngine(ctx context.Context, cfg config.Config) (*search.Engine, *corpus.Index, func(), error) {
	ix, err := loadCorpus(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var opts []search.EngineOption

	if cfg.Embed.Provider != "" {
		dense, closer, err := buildDense(ctx, ix, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: semantic channel unavailable: %v\n", err)
		} else {
			opts = append(opts, search.WithDense(dense))
			if closer != nil {
				closers = append(closers, closer)
			}
		}
	}

	if cfg.Rerank.Enabled {
		scorer, err := rerank.NewLocalScorer(rerank.LocalConfig{
			ModelPath:     cfg.Rerank.ModelPath,
			TokenizerPath: cfg.Rerank.TokenizerPath,
			LibraryPath:   cfg.Embed.LibraryPath,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: reranker unavailable: %v\n", err)
		} else {
			opts = append(opts, search.WithScorer(scorer))
			closers = append(closers, func() { scorer.Close() })
		}
	}

	if cfg.Rewrite.Enabled && cfg.Rewrite.Model != "" {
		rewriter, err := search.NewOpenAIRewriter(cfg.Rewrite.Model, cfg.Rewrite.BaseURL, cfg.Rewrite.Token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: query rewriter unavailable: %v\n", err)
		} else {
			opts = append(opts, search.WithRewriter(rewriter))
		}
	}

	engCfg := search.DefaultConfig()
	engCfg.BM25 = search.BM25Params{K1: cfg.Retrieval.BM25K1, B: cfg.Retrieval.BM25B}
	engCfg.Fusion = search.FusionConfig{K: cfg.Retrieval.RRFK, PoolMultiplier: cfg.Retrieval.PoolMultiplier}
	engCfg.RerankInput = cfg.Retrieval.RerankInput

	return search.NewEngine(ix, engCfg, opts...), ix, cleanup, nil
}

func buildDense(ctx context.Context, ix *corpus.Index, cfg config.Config) (*search.DenseIndex, func(), error) {
	var (
		embedder embed.Embedder
		closer   func()
	)

	switch cfg.Embed.Provider {
	case "local":
		local, err := embed.NewLocal(embed.LocalConfig{
			ModelPath:     cfg.Embed.ModelPath,
			TokenizerPath: cfg.Embed.TokenizerPath,
			LibraryPath:   cfg.Embed.LibraryPath,
		})
		if err != nil {
			return nil, nil, err
		}
		embedder = local
		closer = func() { local.Close() }
	default:
		remoteCfg, err := embed.ParseRemoteFlag(cfg.Embed.Provider + "/" + cfg.Embed.Model)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Embed.Endpoint != "" {
			remoteCfg.Endpoint = cfg.Embed.Endpoint
		}
		if cfg.Embed.APIKey != "" {
			remoteCfg.APIKey = cfg.Embed.APIKey
		}
		remote, err := embed.NewRemote(remoteCfg)
		if err != nil {
			return nil, nil, err
		}
		embedder = remote
	}

	denseCfg := search.DenseIndexConfig{
		Workers:   cfg.Embed.Workers,
		BatchSize: cfg.Embed.BatchSize,
	}
	if cfg.Embed.CachePath != "" {
		cache, err := embed.OpenCache(cfg.Embed.CachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: embedding cache unavailable: %v\n", err)
		} else {
			denseCfg.Cache = cache
			prev := closer
			closer = func() {
				cache.Close()
				if prev != nil {
					prev()
				}
			}
		}
	}

	dense, err := search.BuildDenseIndex(ctx, ix, embedder, denseCfg)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, nil, err
	}
	return dense, closer, nil
}

func printUsage() {
	fmt.Println(`scholar — hybrid textbook passage search

Usage:
  scholar search <query> [flags]   Search the corpus
  scholar stats [--config PATH]    Show corpus statistics
  scholar mcp [--config PATH]      Serve MCP tools over stdio
  scholar version                  Print version
  scholar help                     Show this help

Search flags:
  --config PATH       Config file (default ~/.scholar/config.yaml)
  --mode, -m MODE     hybrid (default), lexical, or semantic
  --top-k, -k N       Number of results (default from config)
  --expand, -e        Include neighboring passages for each result
  --window, -w N      Neighbor window for --expand (default 1)

Configuration lives in YAML (see --config) with SCHOLAR_* environment
overrides; a .env file in the working directory is loaded first.`)
}
