package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ragmem/internal/config"
	"ragmem/internal/domain"
	"ragmem/internal/service"
)

func (c *cli) ingestCmd() *cobra.Command {
	var (
		req             service.IngestRequest
		text, file, url string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest text, a PDF file or a PDF URL into a collection",
		Example: `  ragmem ingest --text "Cats purr." --collection pets
  ragmem ingest --file report.pdf --collection reports --description "Q3 reports"
  echo "notes" | ragmem ingest --text - --overwrite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			switch {
			case text == "-":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				req.Source = domain.TextSource(string(data))
			case text != "":
				req.Source = domain.TextSource(text)
			case file != "":
				req.Source = domain.FileSource(file)
			case url != "":
				req.Source = domain.URLSource(url)
			}
			applyChunkFlags(&req, a.cfg.Chunker, cmd.Flags().Changed("chunk-size"), cmd.Flags().Changed("chunk-overlap"))
			res, err := a.rag.Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks into %q\n", res.Chunks, res.Collection)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&text, "text", "", `Raw text to ingest ("-" reads stdin)`)
	f.StringVar(&file, "file", "", "Local PDF file to ingest")
	f.StringVar(&url, "url", "", "PDF URL to download and ingest")
	f.StringVarP(&req.Collection, "collection", "c", "", "Target collection (default from config)")
	f.StringVar(&req.Description, "description", "", "Collection description recorded on first use")
	f.IntVar(&req.ChunkSize, "chunk-size", 0, "Maximum chunk length in characters (default from config)")
	f.IntVar(&req.ChunkOverlap, "chunk-overlap", 0, "Characters shared by consecutive chunks, 0 for none (default from config)")
	f.IntVar(&req.BatchSize, "batch-size", 0, "Chunks per embedding call (default from config)")
	f.BoolVar(&req.Overwrite, "overwrite", false, "Replace the collection instead of appending")
	f.StringVar(&req.StoragePath, "storage-path", "", "Vector store location (default from config)")
	f.StringVar(&req.EmbeddingModel, "model", "", "Embedding model to switch to before ingesting")
	cmd.MarkFlagsMutuallyExclusive("text", "file", "url")
	cmd.MarkFlagsOneRequired("text", "file", "url")
	return cmd
}

// applyChunkFlags fills chunk sizes the user did not set from the config. A
// configured overlap that does not fit the requested size is left to the
// service default. An explicit --chunk-overlap 0 disables overlap.
func applyChunkFlags(req *service.IngestRequest, cfg config.ChunkerConfig, sizeSet, overlapSet bool) {
	if !sizeSet {
		req.ChunkSize = cfg.ChunkSize
	}
	switch {
	case overlapSet && req.ChunkOverlap == 0:
		req.NoOverlap = true
	case overlapSet:
	case cfg.ChunkOverlap <= req.ChunkSize/2:
		req.ChunkOverlap = cfg.ChunkOverlap
	}
}

// checkNResults rejects an explicit non-positive --n-results.
func checkNResults(cmd *cobra.Command, n int) error {
	if cmd.Flags().Changed("n-results") && n <= 0 {
		return fmt.Errorf("%w: n-results must be positive, got %d", domain.ErrInvalidInput, n)
	}
	return nil
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		req    service.RetrieveRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the passages most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkNResults(cmd, req.NResults); err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			req.Query = strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if asJSON {
				results, err := a.rag.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			texts, err := a.rag.Retrieve(cmd.Context(), req)
			if err != nil {
				return err
			}
			for i, t := range texts {
				fmt.Fprintf(out, "[%d] %s\n", i+1, t)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Collection, "collection", "c", "", "Collection to search (default from config)")
	f.IntVarP(&req.NResults, "n-results", "n", 0, "Results per query fragment (default from config)")
	f.StringVar(&req.StoragePath, "storage-path", "", "Vector store location (default from config)")
	f.BoolVar(&asJSON, "json", false, "Print results with metadata as JSON")
	return cmd
}

func (c *cli) collectionsCmd() *cobra.Command {
	var storagePath string
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List stored collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			names, err := a.rag.StoredCollections(cmd.Context(), storagePath)
			if err != nil {
				return err
			}
			described := a.rag.ListCollections()
			out := cmd.OutOrStdout()
			for _, n := range names {
				if d := described[n]; d != "" {
					fmt.Fprintf(out, "%s\t%s\n", n, d)
					continue
				}
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "Vector store location (default from config)")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	var (
		storagePath string
		all         bool
	)
	cmd := &cobra.Command{
		Use:   "remove [collection]",
		Short: "Delete a collection, or every collection with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("collection name is required unless --all is set")
			}
			a, err := c.open(func(cfg *config.AppConfig) {
				if all {
					cfg.Service.RemovePolicy = service.RemoveAll
				}
			})
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			removed, err := a.rag.RemoveCollection(cmd.Context(), name, storagePath)
			if err != nil {
				return err
			}
			for _, n := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "Vector store location (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every collection")
	return cmd
}
