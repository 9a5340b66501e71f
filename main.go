package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avelkar/aria/backend/repository"
	"github.com/avelkar/aria/backend/services"
)

func main() {
	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	config := services.LoadConfig()
	server := services.NewServer(config)

	var (
		gormDB  *gorm.DB
		repo    *repository.GORMRepository
		mongoDB *mongo.Database
	)

	if config.Database.URL != "" {
		db, err := gorm.Open(postgres.Open(config.Database.URL), &gorm.Config{
			Logger: gormLogLevel(config.Database.LogLevel),
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxIdleConns(config.Database.MaxIdleConns)
			sqlDB.SetMaxOpenConns(config.Database.MaxOpenConns)
			defer sqlDB.Close()
		}

		gormDB = db
		repo = repository.NewGORMRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			slog.Error("Database migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Connected to database")
	} else {
		slog.Warn("Database URL not configured, running without database")
	}

	if config.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.Mongo.URI))
		cancel()
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}()

		mongoDB = client.Database(config.Mongo.Database)
		slog.Info("Connected to MongoDB", "database", config.Mongo.Database)
	} else {
		slog.Warn("Mongo URI not configured, chat history disabled")
	}

	server.SetDatabases(repo, gormDB, mongoDB)

	if err := server.InitializeServices(); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	if config.Database.Seed && repo != nil {
		seeder := services.NewDatabaseSeeder(repo, server.Personas())
		if err := seeder.SeedDatabase(); err != nil {
			slog.Error("Database seeding failed", "error", err)
		}
	}

	server.Start()
}

func gormLogLevel(level string) gormlogger.Interface {
	switch level {
	case "info":
		return gormlogger.Default.LogMode(gormlogger.Info)
	case "warn":
		return gormlogger.Default.LogMode(gormlogger.Warn)
	case "error":
		return gormlogger.Default.LogMode(gormlogger.Error)
	default:
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
}
