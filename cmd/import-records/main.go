package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"template-docgen/internal/config"
	"template-docgen/internal/importer"
	"template-docgen/internal/logging"
	"template-docgen/internal/storage"
)

var (
	filePath string
	sheet    string
	idColumn string
	replace  bool
	envFile  string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "import-records",
	Short: "Load business records from an .xlsx workbook into the record store",
	Long: `import-records reads the first row of a sheet as column headers and stores
every following row as one record keyed by the id column.

Empty cells are stored as null. Dates, numbers and TRUE/FALSE are typed;
everything else is kept as text.`,
	SilenceUsage: true,
	RunE:         runImport,
}

func init() {
	rootCmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the .xlsx workbook (required)")
	rootCmd.Flags().StringVar(&sheet, "sheet", "", "Sheet to read (default: first sheet)")
	rootCmd.Flags().StringVar(&idColumn, "id-column", importer.DefaultIDColumn, "Header of the column holding the record id")
	rootCmd.Flags().BoolVar(&replace, "replace", false, "Delete all existing records before importing")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "Optional .env file to load before reading the environment")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall import timeout")
	_ = rootCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireRecordStore(); err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	n, err := importer.New(store, logger).Import(ctx, f, importer.Options{
		Sheet:    sheet,
		IDColumn: idColumn,
		Replace:  replace,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", n, filePath)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
