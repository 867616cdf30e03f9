// Command docmind ingests a document into a navigable summary tree and
// answers questions against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"docmind/internal/chunker"
	"docmind/internal/config"
	"docmind/internal/credpool"
	"docmind/internal/ingest"
	"docmind/internal/llmclient"
	"docmind/internal/logging"
	"docmind/internal/navigator"
	"docmind/internal/rotator"
	"docmind/internal/store"
	"docmind/internal/subagent"
	"docmind/internal/summarizer"
	"docmind/internal/telemetry"
	"docmind/internal/tokenmeter"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "docmind: load config:", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogPath)
	shutdownTelemetry := telemetry.Init()
	defer shutdownTelemetry(context.Background())

	var runErr error
	switch os.Args[1] {
	case "ingest":
		runErr = runIngest(cfg, os.Args[2:])
	case "query":
		runErr = runQuery(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "docmind:", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docmind ingest <file> [flags] | docmind query <text> [flags]")
}

func runIngest(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "database file path")
	strategy := fs.String("strategy", "fixed", "chunking strategy: fixed|llm")
	maxChunkTokens := fs.Int("max-chunk-tokens", cfg.MaxChunkTokens, "max tokens per chunk")
	groupSize := fs.Int("group-size", cfg.GroupSize, "summaries grouped per parent node")
	maxDepth := fs.Int("max-depth", cfg.MaxDepth, "max levels built above the leaves")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("ingest requires a file path")
	}
	path := fs.Arg(0)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if len(raw) == 0 {
		fmt.Println("empty file: nothing to ingest")
	}

	runLog := logging.ForRun(uuid.NewString(), path)
	runLog.Info().Str("file", path).Str("strategy", *strategy).Msg("starting ingest")

	ctx := context.Background()
	st, err := store.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	summ := buildSummarizationService(cfg)
	chunk, err := buildChunker(*strategy, summ, cfg)
	if err != nil {
		return err
	}

	in := ingest.New(st, chunk, summ)
	result, err := in.Ingest(ctx, string(raw), ingest.Params{
		MaxChunkTokens: *maxChunkTokens,
		GroupSize:      *groupSize,
		MaxDepth:       *maxDepth,
		FileSource:     path,
	})
	if err != nil {
		return err
	}

	fmt.Printf("ingested %q: %d chunks, %d leaf summaries, %d levels built, %d root(s)\n",
		path, result.ChunkCount, result.LeafCount, result.LevelsBuilt, len(result.RootIDs))
	return nil
}

func runQuery(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "database file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("query requires question text")
	}
	question := strings.Join(fs.Args(), " ")

	ctx := context.Background()
	st, err := store.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	summ := buildSubAgentSummarizationService(cfg)
	sub := subagent.New(summ)
	nav := navigator.New(st, sub)

	fmt.Println(navigate(ctx, nav, question))
	return nil
}

// navigate runs a minimal built-in navigation loop: list roots, descend to
// the child whose text best overlaps the question by keyword count, repeat
// until a leaf, then read it with the question (spec.md §6.3).
func navigate(ctx context.Context, nav *navigator.Navigator, question string) string {
	roots := nav.InspectDocumentHierarchy(ctx)
	if roots == "index is empty" {
		return roots
	}

	currentID, ok := mostPromisingID(roots, question)
	if !ok {
		return "could not locate a starting node in the hierarchy"
	}

	for i := 0; i < 64; i++ {
		out := nav.ExamineSummaryNode(ctx, currentID, question)
		if strings.Contains(out, "<subagent_answer>") {
			return out
		}
		if strings.HasPrefix(out, "this is a leaf node") {
			return out
		}

		nextID, ok := mostPromisingID(out, question)
		if !ok || nextID == currentID {
			return out
		}
		currentID = nextID
	}
	return "navigation did not converge on an answer within the step budget"
}

// mostPromisingID parses "(id, text)" lines and returns the id whose text
// shares the most question keywords.
func mostPromisingID(listing, question string) (int64, bool) {
	keywords := strings.Fields(strings.ToLower(question))
	bestScore := -1
	var bestID int64
	found := false

	for _, line := range strings.Split(listing, "\n") {
		id, text, ok := parseIDTextLine(line)
		if !ok {
			continue
		}
		score := 0
		lowered := strings.ToLower(text)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestID = id
			found = true
		}
	}
	return bestID, found
}

func parseIDTextLine(line string) (id int64, text string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "(") || !strings.HasSuffix(line, ")") {
		return 0, "", false
	}
	inner := line[1 : len(line)-1]
	parts := strings.SplitN(inner, ", ", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	var n int64
	if _, err := fmt.Sscanf(parts[0], "%d", &n); err != nil {
		return 0, "", false
	}
	return n, parts[1], true
}

func buildSummarizationService(cfg config.Config) *summarizer.Service {
	pool := credpool.New(cfg.CredentialCount())

	var rotConfigs []rotator.Config
	for _, m := range cfg.Models {
		rotConfigs = append(rotConfigs, rotator.Config{Provider: m.Provider, Model: m.Model})
	}
	if len(rotConfigs) == 0 {
		rotConfigs = []rotator.Config{{Provider: "openai", Model: "gpt-4o-mini"}}
	}
	rot := rotator.New(rotConfigs, cfg.CallsPerModel)

	keysByProvider := map[string][]string{
		"anthropic": cfg.AnthropicAPIKeys,
		"openai":    cfg.OpenAIAPIKeys,
		"google":    cfg.GoogleAPIKeys,
	}

	return summarizer.New(pool, rot, llmclient.DefaultFactory{}, keysByProvider, cfg.MaxRetries)
}

// buildSubAgentSummarizationService builds the summarization service used by
// the chunk-analyzer sub-agent. When an agent catalog is configured and
// carries a "chunk-analyzer" entry, that entry's rotation pool and cadence
// override the main CLI's defaults, since the sub-agent is explicitly bound
// to a distinct configuration id (spec.md §4.10, §4.11).
func buildSubAgentSummarizationService(cfg config.Config) *summarizer.Service {
	if cfg.CatalogPath == "" {
		return buildSummarizationService(cfg)
	}

	cat, err := config.NewCatalogLoader(cfg.CatalogPath).Load()
	if err != nil {
		return buildSummarizationService(cfg)
	}
	spec, ok := cat["chunk-analyzer"]
	if !ok {
		return buildSummarizationService(cfg)
	}

	sub := cfg
	if len(spec.Rotation) > 0 {
		sub.Models = spec.Rotation
	}
	if spec.CallsPerModel > 0 {
		sub.CallsPerModel = spec.CallsPerModel
	}
	return buildSummarizationService(sub)
}

func buildChunker(strategy string, summ *summarizer.Service, cfg config.Config) (chunker.Chunker, error) {
	meter := tokenmeter.Default()
	switch strategy {
	case "fixed":
		return chunker.NewFixedWindow(meter, 0.1), nil
	case "llm":
		return chunker.NewLLMBoundary(meter, boundaryModel{summ: summ}, 0.1), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}

type boundaryModel struct {
	summ *summarizer.Service
}

func (b boundaryModel) ProposeBoundary(ctx context.Context, window string) (string, error) {
	prompt := "Given this text window, respond with strict JSON {\"cut_index\": int, \"next_chunk_start_index\": int}, both byte offsets into the window below:\n\n" + window
	return b.summ.Summarize(ctx, prompt)
}

