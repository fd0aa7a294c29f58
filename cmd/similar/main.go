package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timmy/stylematch/internal/bootstrap"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/service"
)

// Exit codes.
const (
	exitOK               = 0
	exitFailure          = 1
	exitUsage            = 2
	exitReferenceMissing = 3
	exitCatalog          = 4
	exitInterrupted      = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	reference := flag.String("reference", "", "product_id of the reference product (prompted when empty)")
	categories := flag.String("categories", "", "Comma-separated candidate categories (default: all)")
	topK := flag.Int("top-k", -1, "Keep at most this many results, 0 keeps all (default: config)")
	minScore := flag.Float64("min-score", -2, "Drop results scoring below this, in [-1, 1] (default: config)")
	excludeSame := flag.Bool("exclude-same-category", false, "Leave the reference's own category out of the candidates")
	list := flag.Bool("list", false, "List catalog products and exit")
	limit := flag.Int("limit", -1, "Only use the first N catalog records, 0 uses all (default: config)")
	flag.Parse()

	// Results go to stdout; logs stay on stderr.
	appLogger := logger.New(&logger.Config{
		Level:       envOr("LOG_LEVEL", "warn"),
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "stylematch-similar",
	})
	logger.SetDefaultLogger(appLogger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitFailure
	}
	if *limit >= 0 {
		cfg.Catalog.Limit = *limit
	}

	req, err := buildRequest(cfg, *reference, *categories, *topK, *minScore, *excludeSame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		flag.Usage()
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, appLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		return exitFailure
	}
	defer components.Close()

	svc := components.Similarity

	if *list {
		records, err := svc.Products(ctx)
		if err != nil {
			return reportError(err)
		}
		printProducts(os.Stdout, records)
		return exitOK
	}

	if req.ReferenceID == "" {
		id, err := promptReference(ctx, svc, os.Stdin, os.Stdout)
		if err != nil {
			return reportError(err)
		}
		req.ReferenceID = id
	}

	resp, err := svc.FindSimilar(ctx, req)
	if err != nil {
		return reportError(err)
	}

	printResponse(os.Stdout, resp)
	return exitOK
}

// buildRequest merges flags over the configured defaults. Negative topK and
// a minScore below -1 mean "not given".
func buildRequest(cfg *config.Config, reference, categories string, topK int, minScore float64, excludeSame bool) (*service.SimilarityRequest, error) {
	req := &service.SimilarityRequest{
		ReferenceID:              strings.TrimSpace(reference),
		TopK:                     cfg.Similarity.TopK,
		ExcludeReferenceCategory: cfg.Similarity.ExcludeReferenceCategory || excludeSame,
	}

	for _, part := range strings.Split(categories, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !domain.IsRecognizedType(part) {
			return nil, fmt.Errorf("unknown category %q (want one of %s)", part, strings.Join(domain.RecognizedTypes, ", "))
		}
		req.Categories = append(req.Categories, part)
	}

	if topK >= 0 {
		req.TopK = topK
	}

	score := cfg.Similarity.MinScore
	if minScore >= -1 {
		if minScore > 1 {
			return nil, fmt.Errorf("min-score must be within [-1, 1]")
		}
		score = minScore
	}
	req.MinScore = &score

	return req, nil
}

// promptReference lists the catalog and reads a product_id from in.
func promptReference(ctx context.Context, svc *service.SimilarityService, in io.Reader, out io.Writer) (string, error) {
	records, err := svc.Products(ctx)
	if err != nil {
		return "", err
	}
	printProducts(out, records)
	return readReference(ctx, in, out)
}

type promptLine struct {
	text string
	err  error
}

// readReference prompts until a non-blank line arrives. Reads happen on a
// separate goroutine so an interrupt ends the prompt without waiting for input.
func readReference(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	lines := make(chan promptLine)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- promptLine{text: scanner.Text()}:
			case <-done:
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case lines <- promptLine{err: err}:
		case <-done:
		}
	}()

	for {
		fmt.Fprint(out, "\nReference product_id: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return "", ctx.Err()
		case line := <-lines:
			if line.err != nil {
				return "", line.err
			}
			if id := strings.TrimSpace(line.text); id != "" {
				return id, nil
			}
		}
	}
}

// reportError prints err and maps it to an exit code.
func reportError(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		refErr *domain.ReferenceMissingError
		catErr *domain.CatalogError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, service.ErrInvalidRequest):
		return exitUsage
	case errors.As(err, &refErr):
		return exitReferenceMissing
	case errors.As(err, &catErr):
		return exitCatalog
	default:
		return exitFailure
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
