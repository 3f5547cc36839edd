package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/prselect/internal/config"
	"github.com/Yates-Labs/prselect/internal/ingest/git"
	"github.com/Yates-Labs/prselect/internal/rag"
)

var (
	ingestDir       string
	ingestRepo      string
	ingestRev       string
	ingestStandards string
	ingestReindex   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a knowledge base for retrieval",
	Long: `Split documentation, coding standards or a whole repository into chunks,
embed them and store them in Milvus so reviews can retrieve relevant context.

Sources already in the collection are skipped unless --reindex is given.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings
  MILVUS_ADDRESS     - Milvus server address (default: localhost:19530)

Examples:
  prselect ingest --dir docs/ --standards STANDARDS.md
  prselect ingest --repo https://github.com/octo/widgets --rev main
  prselect ingest --repo . --reindex`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Directory of documents to index (defaults to rag.knowledge_dir)")
	ingestCmd.Flags().StringVar(&ingestRepo, "repo", "", "Git repository path or URL whose files are indexed")
	ingestCmd.Flags().StringVar(&ingestRev, "rev", "HEAD", "Revision of --repo to index")
	ingestCmd.Flags().StringVar(&ingestStandards, "standards", "", "Coding standards file (defaults to rag.standards_file)")
	ingestCmd.Flags().BoolVar(&ingestReindex, "reindex", false, "Replace sources that are already indexed")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RAG.Backend == config.RAGMemory {
		return fmt.Errorf("the memory backend is rebuilt on every run; set rag.backend to %q to ingest", config.RAGMilvus)
	}
	if ingestDir != "" {
		cfg.RAG.KnowledgeDir = ingestDir
	}
	if ingestStandards != "" {
		cfg.RAG.StandardsFile = ingestStandards
	}

	docs, err := knowledgeDocuments()
	if err != nil {
		return err
	}
	if ingestRepo != "" {
		repoDocs, err := repositoryDocuments(ingestRepo, ingestRev)
		if err != nil {
			return err
		}
		docs = append(docs, repoDocs...)
	}

	embedder, err := rag.NewOpenAIEmbedder(cfg.RAG.Embedder)
	if err != nil {
		return err
	}
	store, err := rag.NewMilvusStore(ctx, cfg.RAG.Milvus)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println(titleStyle.Render(fmt.Sprintf("Indexing %d documents into %s", len(docs), cfg.RAG.Milvus.CollectionName)))
	report, err := rag.IndexDocuments(ctx, docs, embedder, store, indexOptions(ingestReindex), logger.Named("rag"))
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("Error:"), err)
	}

	rows, err := store.RowCount(ctx)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Indexed %d documents (%d chunks), skipped %d already present",
		report.Documents, report.Chunks, report.Skipped)))
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Collection now holds %d chunks", rows)))
	return nil
}

// repositoryDocuments reads the text files of a repository revision, keyed
// by their path in the tree.
func repositoryDocuments(location, rev string) ([]rag.Document, error) {
	repo, err := openOrClone(location)
	if err != nil {
		return nil, err
	}
	files, err := git.ReadTree(repo, rev, rag.MaxDocumentBytes)
	if err != nil {
		return nil, err
	}
	docs := make([]rag.Document, 0, len(files))
	for _, f := range files {
		docs = append(docs, rag.Document{Source: f.Path, Text: f.Content})
	}
	return docs, nil
}
