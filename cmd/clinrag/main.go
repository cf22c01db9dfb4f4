package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"clinrag/internal/config"
	"clinrag/internal/domain"
	"clinrag/internal/embedding"
	"clinrag/internal/embedding/hashing"
	"clinrag/internal/embedding/openai"
	"clinrag/internal/logger"
	"clinrag/internal/segmenter"
	"clinrag/internal/service"
	"clinrag/internal/summarizer"
	"clinrag/internal/tui"
	"clinrag/internal/vectorstore/memory"
	"clinrag/internal/vectorstore/qdrant"
	"clinrag/internal/vectorstore/sqlite"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath  = flag.String("config", config.DefaultPath, "Path to YAML config file")
		verbose  = flag.Bool("verbose", false, "Log pipeline stages to stderr")
		reset    = flag.Bool("reset", false, "Destroy the whole index before doing anything else")
		patient  = flag.String("patient", "", "Patient name stored with indexed transcripts")
		date     = flag.String("date", "", "Transcript date (YYYY-MM-DD, defaults to today UTC)")
		age      = flag.Int("age", -1, "Patient age stored with indexed transcripts")
		sourceID = flag.String("source-id", "", "Source id for the indexed transcript (random if empty; only valid with a single file)")
		query    = flag.String("query", "", "One-shot query printed to stdout instead of the interactive console")
		topK     = flag.Int("top-k", service.DefaultTopK, "Number of fragments to retrieve")
	)
	flag.Parse()
	files := flag.Args()
	logger.SetVerbose(*verbose)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}
	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("vector store init failed: %v", err)
	}
	seg := segmenter.New(cfg.Segmenter.MaxChars, cfg.Segmenter.OverlapChars)
	svc := service.New(seg, embedder, store)

	if *reset {
		if err := svc.Reset(); err != nil {
			log.Fatalf("reset failed: %v", err)
		}
		fmt.Println("index reset")
		if len(files) == 0 && *query == "" {
			return
		}
	}
	if len(files) == 0 {
		// nothing to index; make sure the first query does not pay the
		// encoder construction cost
		if err := svc.Warmup(); err != nil {
			log.Fatalf("warmup failed: %v", err)
		}
	}
	if *sourceID != "" && len(files) > 1 {
		log.Fatalf("--source-id applies to a single transcript, got %d files", len(files))
	}

	summary := ""
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("reading %s: %v", path, err)
		}
		req := service.IndexRequest{Text: string(data), SourceID: *sourceID}
		if *patient != "" {
			req.PatientName = patient
		}
		if *date != "" {
			req.Date = date
		}
		if *age >= 0 {
			req.Age = age
		}
		res, err := svc.Index(req)
		if err != nil {
			log.Fatalf("indexing %s: %v", path, err)
		}
		fmt.Printf("indexed %s: source_id=%s chunks=%d\n", path, res.SourceID, res.ChunksIndexed)
		if s, err := summarizer.NewFrequency().Summarize(string(data), 3); err == nil {
			summary = s
		}
	}

	if *query != "" {
		q, rawFilters := tui.ParseQuery(*query)
		hits, err := svc.Retrieve(q, rawFilters, *topK)
		if err != nil {
			log.Fatalf("retrieve failed: %v", err)
		}
		printHits(hits)
		return
	}

	m := tui.New(svc, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := cfg.Embedder.Dimension
		return embedding.NewProvider("hashing", cfg.Embedder.BatchSize, func() (embedding.Encoder, error) {
			return hashing.New(dim), nil
		}), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		occ := openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
		}
		return embedding.NewProvider("openai", cfg.Embedder.BatchSize, func() (embedding.Encoder, error) {
			return openai.New(occ)
		}), nil
	}
	return nil, fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type)
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		return sqlite.New(cfg.VectorStore.DataDir, cfg.VectorStore.Collection)
	case "memory":
		return memory.New(), nil
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		if qc == nil {
			return nil, fmt.Errorf("qdrant store selected but no qdrant config given")
		}
		return qdrant.New(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: cfg.VectorStore.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	}
	return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
}

func printHits(hits []service.Hit) {
	if len(hits) == 0 {
		fmt.Println("no matching fragments")
		return
	}
	for i, h := range hits {
		fmt.Printf("--- %d. score=%.3f source=%s chunk=%d\n", i+1, h.Score, h.SourceID, h.Metadata.ChunkIdx)
		if h.Metadata.PatientName != nil {
			fmt.Printf("    patient=%s", *h.Metadata.PatientName)
			if h.Metadata.Date != nil {
				fmt.Printf(" date=%s", *h.Metadata.Date)
			}
			fmt.Println()
		} else if h.Metadata.Date != nil {
			fmt.Printf("    date=%s\n", *h.Metadata.Date)
		}
		fmt.Println(h.Text)
	}
}
