package main

import (
	"fmt"
	"os"

	"github.com/nurpe/contractor-ledger/internal/auth"
	"github.com/nurpe/contractor-ledger/internal/config"
	"github.com/nurpe/contractor-ledger/internal/db"
	"github.com/nurpe/contractor-ledger/internal/excel"
	httphandler "github.com/nurpe/contractor-ledger/internal/http"
	"github.com/nurpe/contractor-ledger/internal/http/middleware"
	"github.com/nurpe/contractor-ledger/internal/logger"
	"github.com/nurpe/contractor-ledger/internal/pdf"
	"github.com/nurpe/contractor-ledger/internal/repository"
	"github.com/nurpe/contractor-ledger/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	ledgerRepo := repository.NewLedgerRepository(database, cfg.DB.LockTimeout)
	ledgerService := service.NewLedgerService(ledgerRepo, cfg, log)
	pdfGenerator := pdf.NewGenerator()
	if cfg.Documents.PDFFontPath != "" {
		font, err := os.ReadFile(cfg.Documents.PDFFontPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Documents.PDFFontPath).Msg("failed to read pdf font")
		}
		pdfGenerator, err = pdf.NewGeneratorWithFont("ReceiptSans", font)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init pdf generator")
		}
	}
	documentService := service.NewDocumentService(ledgerService, excel.NewGenerator(), pdfGenerator)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(ledgerService, documentService, log)
	authMiddleware := middleware.Auth(tokenParser, cfg.Auth.ProfileHeader, ledgerService)
	router := httphandler.NewRouter(handler, authMiddleware, ledgerRepo, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting ledger service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
