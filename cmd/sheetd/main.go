package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SAP-F-2025/quiro-companion/internal/cache"
	"github.com/SAP-F-2025/quiro-companion/internal/config"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories/xlsx"
	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/SAP-F-2025/quiro-companion/internal/sheetapi"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
	"github.com/SAP-F-2025/quiro-companion/pkg"
)

func main() {
	seed := flag.Bool("seed", false, "write a sample workbook to SHEET_WORKBOOK and exit")
	flag.Parse()

	cfg, err := config.LoadSheetConfig()
	if err != nil {
		utils.NewDefaultLogger().LogError(err, "Invalid configuration")
		os.Exit(1)
	}

	logger := utils.NewEnvironmentLogger(cfg.Environment, "quiro-sheetd")
	slogger := utils.ToSlogLogger(logger)

	if *seed {
		if err := xlsx.CreateWorkbook(cfg.WorkbookPath, sampleQuestions, sampleCards); err != nil {
			logger.LogError(err, "Failed to write sample workbook")
			os.Exit(1)
		}
		logger.Info("Sample workbook written", "path", cfg.WorkbookPath)
		return
	}

	repo, err := openStore(cfg, slogger)
	if err != nil {
		logger.LogError(err, "Failed to open sheet store", "store", cfg.Store)
		os.Exit(1)
	}
	defer repo.Close()

	opts := []services.SheetServiceOption{}
	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.LogError(err, "Question cache disabled")
	} else if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, services.WithQuestionCache(cache.NewRedisCache(redisClient, slogger), cfg.CacheTTL))
	}

	handler := sheetapi.NewHandler(sheetapi.HandlerConfig{
		Service:   services.NewSheetService(repo, slogger, opts...),
		Logger:    slogger,
		PublicURL: cfg.PublicURL,
	})
	server := sheetapi.NewServer(handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Sheet backend listening", "port", cfg.Port, "store", cfg.Store)
		if err := server.ListenAndServe(":" + cfg.Port); err != nil {
			logger.LogError(err, "Sheet backend stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	if err := server.Shutdown(); err != nil {
		logger.LogError(err, "Graceful shutdown failed")
	}
}

func openStore(cfg *config.SheetConfig, logger *slog.Logger) (repositories.SheetRepository, error) {
	if cfg.Store == "postgres" {
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		return postgres.NewSheetPostgreSQL(db), nil
	}
	return xlsx.NewSheetStore(cfg.WorkbookPath, logger)
}

var sampleQuestions = []models.SheetQuestion{
	{Number: 1, Text: "Sebutkan tiga warna primer!"},
	{Number: 2, Text: "Berapa hasil 12 x 12?"},
	{Number: 3, Text: "Apa nama ibu kota provinsi Jawa Timur?"},
	{Number: 4, Text: "Tebak lagu dari potongan video ini!", MediaDrive: "https://drive.google.com/file/d/contoh/view"},
	{Number: 5, Text: "Siapa penemu bola lampu?"},
}

var sampleCards = []models.Card{
	{ID: "KARTU-01", QuestionNumber: 1},
	{ID: "KARTU-02", QuestionNumber: 2},
	{ID: "KARTU-03", QuestionNumber: 3},
}
