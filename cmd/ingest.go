package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ingestUser     string
	ingestTitle    string
	ingestManifest string
)

// manifest is the YAML format for bulk ingestion: a list of documents, each
// either inline content, a file path, or a URL.
type manifest struct {
	Documents []manifestEntry `yaml:"documents"`
}

type manifestEntry struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	File    string `yaml:"file"`
	URL     string `yaml:"url"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file-or-url...]",
	Short: "Index documents for retrieval",
	Long:  "Chunks documents, embeds each chunk, and stores the fragments for similarity search. Accepts file paths, URLs, or a YAML manifest via --manifest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 && ingestManifest == "" {
			return eris.New("nothing to ingest: pass file paths, URLs, or --manifest")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := collectEntries(args)
		if err != nil {
			return err
		}

		for _, e := range entries {
			var (
				docID  string
				title  string
				chunks int
			)
			switch {
			case e.URL != "":
				res, err := env.Ingestor.IngestURL(ctx, ingestUser, e.URL)
				if err != nil {
					return eris.Wrapf(err, "ingest %s", e.URL)
				}
				docID, title, chunks = res.DocumentID, res.Title, res.Chunks
			default:
				res, err := env.Ingestor.IngestText(ctx, ingestUser, e.Title, e.Content)
				if err != nil {
					return eris.Wrapf(err, "ingest %q", e.Title)
				}
				docID, title, chunks = res.DocumentID, res.Title, res.Chunks
			}
			zap.L().Info("document indexed",
				zap.String("document_id", docID),
				zap.String("title", title),
				zap.Int("chunks", chunks))
			fmt.Printf("%s  %q  %d chunks\n", docID, title, chunks)
		}

		return nil
	},
}

// collectEntries merges command-line arguments and the manifest into one
// entry list. File-backed entries are read up front so a missing file fails
// before any embedding spend.
func collectEntries(args []string) ([]manifestEntry, error) {
	var entries []manifestEntry

	for _, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			entries = append(entries, manifestEntry{URL: arg})
			continue
		}
		entries = append(entries, manifestEntry{Title: ingestTitle, File: arg})
	}

	if ingestManifest != "" {
		raw, err := os.ReadFile(ingestManifest)
		if err != nil {
			return nil, eris.Wrap(err, "read manifest")
		}
		var m manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrap(err, "parse manifest")
		}
		entries = append(entries, m.Documents...)
	}

	for i, e := range entries {
		if e.File != "" {
			raw, err := os.ReadFile(e.File)
			if err != nil {
				return nil, eris.Wrapf(err, "read %s", e.File)
			}
			entries[i].Content = string(raw)
			if entries[i].Title == "" {
				entries[i].Title = strings.TrimSuffix(filepath.Base(e.File), filepath.Ext(e.File))
			}
		}
		if entries[i].URL == "" && entries[i].Content == "" {
			return nil, eris.Errorf("manifest entry %d has neither content, file, nor url", i)
		}
	}

	return entries, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUser, "user", "local", "owner user id")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (single file only)")
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "YAML manifest of documents to ingest")
	rootCmd.AddCommand(ingestCmd)
}
