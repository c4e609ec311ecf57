package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/groot/groot/internal/config"
	"github.com/groot/groot/internal/domain/doctor"
	"github.com/groot/groot/internal/domain/knowledge"
	"github.com/groot/groot/internal/domain/triage"
	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/internal/platform/db"
	"github.com/groot/groot/internal/platform/embedding"
	"github.com/groot/groot/internal/platform/vectorstore"
	"github.com/groot/groot/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "groot-server",
		Short:        "GROOT ovarian cyst care API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(doctorCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the PDF documents into the knowledge index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				cfg.DocumentsDir = dir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := cmd.Context()
			svc, closeIndex, err := buildKnowledge(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeIndex()

			report, err := svc.Ingest(ctx)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			for _, d := range report.Documents {
				if d.Error != "" {
					fmt.Printf("FAILED  %-40s %s\n", d.Source, d.Error)
					continue
				}
				fmt.Printf("OK      %-40s %d chunk(s)\n", d.Source, d.Chunks)
			}
			fmt.Printf("Indexed %d chunk(s) from %d document(s), %d failed.\n",
				report.Chunks, len(report.Documents)-report.Failed, report.Failed)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Documents directory (defaults to DOCUMENTS_DIR)")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the treatment inventory and cost catalog",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the catalog with the contents of two CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			invPath, _ := cmd.Flags().GetString("inventory")
			costPath, _ := cmd.Flags().GetString("costs")
			if invPath == "" || costPath == "" {
				return fmt.Errorf("--inventory and --costs are required")
			}

			inventory, err := parseCSVFile(invPath, triage.ParseInventoryCSV)
			if err != nil {
				return err
			}
			costs, err := parseCSVFile(costPath, triage.ParseCostsCSV)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			models, err := triage.LoadModels(cfg.ModelDir)
			if err != nil {
				return err
			}
			svc := triage.NewService(models, triage.NewCatalogRepo(pool), nil, newLogger(cfg.Env))
			if err := svc.ImportCatalog(ctx, inventory, costs); err != nil {
				return fmt.Errorf("catalog import failed: %w", err)
			}
			fmt.Printf("Imported %d inventory row(s) and %d cost row(s).\n", len(inventory), len(costs))
			return nil
		},
	}
	importCmd.Flags().String("inventory", "", "Path to the inventory CSV")
	importCmd.Flags().String("costs", "", "Path to the treatment costs CSV")
	cmd.AddCommand(importCmd)

	return cmd
}

func parseCSVFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage registered doctors",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a doctor who can sign in with a license id and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := doctor.CreateInput{}
			in.LicenseID, _ = cmd.Flags().GetString("license")
			in.FullName, _ = cmd.Flags().GetString("name")
			in.Email, _ = cmd.Flags().GetString("email")
			in.Password, _ = cmd.Flags().GetString("password")
			in.Admin, _ = cmd.Flags().GetBool("admin")
			if in.Password == "" {
				in.Password = os.Getenv("DOCTOR_PASSWORD")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := doctor.NewService(doctor.NewRepo(pool), nil, nil, newLogger(cfg.Env))
			d, err := svc.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created doctor %s (%s) with roles %s\n", d.LicenseID, d.ID, strings.Join(d.Roles, ","))
			return nil
		},
	}
	createCmd.Flags().String("license", "", "Medical license id, e.g. KEN-MD-1234")
	createCmd.Flags().String("name", "", "Full name")
	createCmd.Flags().String("email", "", "Email address (optional)")
	createCmd.Flags().String("password", "", "Initial password (or set DOCTOR_PASSWORD)")
	createCmd.Flags().Bool("admin", false, "Grant the admin role")
	cmd.AddCommand(createCmd)

	return cmd
}

// buildKnowledge wires the embedder and vector index. A missing embedding
// key leaves the service unconfigured rather than failing.
func buildKnowledge(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*knowledge.Service, func(), error) {
	var embedder embedding.Embedder
	e, err := embedding.New(ctx, embedding.Config{
		Provider:   cfg.EmbeddingProvider,
		APIKey:     cfg.EmbeddingAPIKey(),
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})
	switch {
	case err == nil:
		embedder = e
	case errors.Is(err, embedding.ErrNotConfigured):
		logger.Warn().Str("provider", cfg.EmbeddingProvider).Msg("embedding key not set, knowledge base disabled")
	default:
		return nil, nil, err
	}

	var index vectorstore.Index
	switch cfg.VectorStore {
	case "pinecone":
		p, err := vectorstore.NewPinecone(cfg.PineconeIndexHost, cfg.PineconeAPIKey, "")
		switch {
		case err == nil:
			index = p
		case errors.Is(err, vectorstore.ErrNotConfigured):
			logger.Warn().Msg("PINECONE_API_KEY not set, knowledge base disabled")
		default:
			return nil, nil, err
		}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.VectorDBPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create vector db dir: %w", err)
		}
		s, err := vectorstore.OpenSQLite(cfg.VectorDBPath)
		if err != nil {
			return nil, nil, err
		}
		index = s
	}

	closeIndex := func() {
		if index == nil {
			return
		}
		if err := index.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close vector index")
		}
	}
	return knowledge.NewService(embedder, index, cfg.DocumentsDir, logger), closeIndex, nil
}

// newTokenIssuer falls back to a random key in development so a fresh
// checkout can serve without configuration.
func newTokenIssuer(cfg *config.Config, logger zerolog.Logger) (*auth.TokenIssuer, error) {
	key := []byte(cfg.JWTSigningKey)
	if len(key) == 0 {
		if !cfg.IsDev() {
			return nil, fmt.Errorf("JWT_SIGNING_KEY is required")
		}
		var err error
		key, err = randomKey(32)
		if err != nil {
			return nil, err
		}
		logger.Warn().Msg("JWT_SIGNING_KEY not set, using an ephemeral development key")
	}
	return auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.TokenTTL), nil
}

func randomKey(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}
