// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main runs the video portal API service
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/video-portal/internal/api"
	"github.com/your-org/video-portal/internal/config"
	"github.com/your-org/video-portal/internal/tenant"
	"github.com/your-org/video-portal/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	maskedConfig := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", "portal"),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("vendor_endpoint", maskedConfig.Vendor.Endpoint),
		zap.String("vendor_api_key", maskedConfig.Vendor.APIKey),
		zap.String("tenants_db", maskedConfig.Tenants.DBPath),
		zap.Int("ask_fallback_timeout_seconds", maskedConfig.Ask.FallbackTimeoutSeconds),
	)

	client, err := upstream.NewClient(cfg.Vendor.Endpoint, logger)
	if err != nil {
		logger.Fatal("Failed to initialize platform client", zap.Error(err))
	}

	store, err := tenant.NewStore(cfg.Tenants.DBPath)
	if err != nil {
		logger.Fatal("Failed to open tenant store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	resolver := tenant.NewResolver(store,
		cfg.Tenants.CacheSize,
		time.Duration(cfg.Tenants.CacheTTLMinutes)*time.Minute,
		logger,
	)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger))

	// Embeddable players and portal pages call these routes cross-origin
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) == 1 && cfg.Server.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, api.RequestIDHeader)
	router.Use(cors.New(corsConfig))

	server := api.NewServer(cfg, client, resolver, logger)
	server.Register(router)

	logger.Info("Starting portal service",
		zap.String("port", cfg.Server.Port),
		zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
	)

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

// initializeLogger creates a logger based on configuration settings
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"portal.log"}
		zapConfig.ErrorOutputPaths = []string{"portal.log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}
