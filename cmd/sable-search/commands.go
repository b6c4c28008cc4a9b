package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sablesearch/sable-search/internal/analyzer"
	"github.com/sablesearch/sable-search/internal/evaluation"
	"github.com/sablesearch/sable-search/internal/ingest"
	"github.com/sablesearch/sable-search/internal/queue"
	"github.com/sablesearch/sable-search/internal/search"
	"github.com/sablesearch/sable-search/internal/storage"
)

func searchCmd() *cobra.Command {
	var (
		collection      string
		limit           int
		offset          int
		filters         []string
		userID          string
		diversification string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			req := search.Request{
				Query:           strings.Join(args, " "),
				Collection:      collection,
				Limit:           limit,
				Offset:          offset,
				Filters:         parseFilters(filters),
				Diversification: diversification,
			}
			if userID != "" {
				req.Context = &analyzer.Context{UserID: userID}
			}

			start := time.Now()
			resp, err := a.search.Search(cmd.Context(), req)
			a.reportSearch(cmd.Context(), resp, time.Since(start), err)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(resp)
			}
			printResponse(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "collection to search (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	cmd.Flags().StringSliceVarP(&filters, "filter", "f", nil, "metadata filter key=value (repeatable)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id for personalization")
	cmd.Flags().StringVar(&diversification, "diversify", "", "diversification algorithm override")
	cmd.MarkFlagRequired("collection")

	return cmd
}

func printResponse(resp *search.Response) {
	emitText("%d results for %q (strategy %s, %dms)",
		resp.Total, resp.Query, resp.Strategy, resp.Metadata.SearchTimeMs)
	if resp.Degraded {
		emitText("  (degraded: semantic retrieval unavailable)")
	}
	for _, r := range resp.Results {
		emitText("%3d. %-24s %.4f  %s", r.Rank, r.ID, r.FinalScore, r.Title)
		for _, s := range r.Snippets {
			emitText("       %s", s)
		}
	}
}

func ingestCmd() *cobra.Command {
	var (
		collection string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents from a JSON file or stdin",
		Long: `Reads a JSON array of documents ({"id", "title", "content",
"metadata", "priority"}) from --file or stdin and registers them in
the collection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.ingest.IngestBatch(cmd.Context(), collection, docs)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(result)
			}
			emitText("ingested %d, failed %d", result.Ingested, result.Failed)
			for _, e := range result.Errors {
				emitText("  %s: %s", e.DocumentID, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "target collection (required)")
	cmd.Flags().StringVarP(&file, "file", "F", "", "JSON file of documents (default stdin)")
	cmd.MarkFlagRequired("collection")

	cmd.AddCommand(ingestProcessCmd(), ingestRemoveCmd())
	return cmd
}

func ingestProcessCmd() *cobra.Command {
	var (
		collection string
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate pending embeddings for a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.ingest.ProcessEmbeddings(cmd.Context(), collection, batchSize)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(result)
			}
			emitText("processed %d, failed %d, remaining %d",
				result.Processed, result.Failed, result.RemainingInQueue)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "target collection (required)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "items per batch (0 = configured default)")
	cmd.MarkFlagRequired("collection")
	return cmd
}

func ingestRemoveCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "remove <document-id>",
		Short: "Remove a document and its derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ingest.Remove(cmd.Context(), collection, args[0]); err != nil {
				return err
			}
			emitText("removed %s", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "target collection (required)")
	cmd.MarkFlagRequired("collection")
	return cmd
}

func collectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}
	cmd.AddCommand(
		collectionCreateCmd(),
		collectionListCmd(),
		collectionDescribeCmd(),
		collectionUpdateCmd(),
		collectionDeleteCmd(),
	)
	return cmd
}

func embeddingFlags(cmd *cobra.Command, cfg *storage.EmbeddingConfig) {
	cmd.Flags().StringVar(&cfg.ProviderKind, "provider", "", "embedding provider (local or remote)")
	cmd.Flags().StringVar(&cfg.Model, "model", "", "embedding model name")
	cmd.Flags().IntVar(&cfg.Dimensions, "dimensions", 0, "embedding dimensions")
	cmd.Flags().BoolVar(&cfg.AutoGenerate, "auto-generate", false, "embed documents on ingest")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "provider API key (remote only)")
}

func collectionCreateCmd() *cobra.Command {
	var embedding storage.EmbeddingConfig

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.collections.Create(cmd.Context(), args[0], embedding); err != nil {
				return err
			}
			emitText("created %s", args[0])
			return nil
		},
	}

	embeddingFlags(cmd, &embedding)
	return cmd
}

func collectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			infos, err := a.collections.List(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(infos)
			}
			for _, info := range infos {
				kind := info.Embedding.ProviderKind
				if kind == "" {
					kind = "lexical-only"
				}
				emitText("%-24s %8d docs  %s", info.Name, info.DocumentCount, kind)
			}
			return nil
		},
	}
}

func collectionDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a collection's configuration and counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := a.collections.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(info)
		},
	}
}

func collectionUpdateCmd() *cobra.Command {
	var embedding storage.EmbeddingConfig

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update a collection's embedding configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.collections.UpdateConfig(cmd.Context(), args[0], embedding); err != nil {
				return err
			}
			emitText("updated %s", args[0])
			return nil
		},
	}

	embeddingFlags(cmd, &embedding)
	return cmd
}

func collectionDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection and all its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deleting %q removes all its documents; pass --force to confirm", args[0])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.collections.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			emitText("deleted %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm deletion")
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the embedding queue",
	}
	cmd.AddCommand(queueStatusCmd(), queueClearCmd())
	return cmd
}

func queueStatusCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show embedding queue depth by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.queue.GetStatus(cmd.Context(), collection)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(report)
			}
			emitText("pending %d, processing %d, completed %d, failed %d",
				report.Pending, report.Processing, report.Completed, report.Failed)
			if report.AvgProcessingTime > 0 {
				emitText("avg processing time: %s", report.AvgProcessingTime)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "restrict to one collection")
	return cmd
}

func queueClearCmd() *cobra.Command {
	var (
		collection string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.queue.ClearQueue(cmd.Context(), queue.ClearFilter{
				Collection: collection,
				Status:     queue.Status(status),
			})
			if err != nil {
				return err
			}
			emitText("cleared %d queue entries", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "C", "", "restrict to one collection")
	cmd.Flags().StringVar(&status, "status", "", "restrict to one status (pending, processing, completed, failed)")
	return cmd
}

func workerCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background embedding worker",
		Long: `Drains each auto-generating collection's embedding queue on a
fixed interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			worker := a.ingest.NewWorker(interval)
			a.log.Info("worker started", "interval", interval.String())

			done := make(chan struct{})
			go func() {
				worker.Run(ctx)
				close(done)
			}()

			<-ctx.Done()
			worker.Stop()
			<-done

			snapshot := a.metrics.Snapshot()
			a.log.Info("worker stopped",
				"queue_processed", snapshot.QueueProcessed,
				"queue_failed", snapshot.QueueFailed,
			)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "delay between queue passes")
	return cmd
}

func evaluateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score retrieval quality against labeled judgments",
		Long: `Reads a JSON suite of queries and relevance judgments from --file
or stdin, runs each query through the pipeline, and reports NDCG,
precision, recall, MRR and MAP at the suite's cutoffs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			suite, err := evaluation.LoadSuite(r)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := evaluation.NewEvaluator(a.search).Run(cmd.Context(), suite)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return emit(report)
			}
			emitText("%d queries  MRR %.4f  MAP %.4f", report.QueryCount, report.MRR, report.MAP)
			for _, k := range suite.Ks {
				emitText("  @%-3d NDCG %.4f  P %.4f  R %.4f",
					k, report.MeanNDCG[k], report.MeanPrecision[k], report.MeanRecall[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "F", "", "JSON suite file (default stdin)")
	return cmd
}

func parseFilters(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if ok && key != "" {
			filters[key] = value
		}
	}
	return filters
}

func readDocuments(path string) ([]ingest.Document, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var docs []ingest.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	return docs, nil
}
