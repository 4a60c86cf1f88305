package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/logging"
)

func main() {
	var (
		host           = flag.String("host", "localhost", "Database host")
		port           = flag.Int("port", 5432, "Database port")
		user           = flag.String("user", "searcher", "Database user")
		password       = flag.String("password", "searcher_dev", "Database password")
		dbName         = flag.String("name", "searcher", "Database name")
		migrationsPath = flag.String("migrations", "./migrations", "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := database.Config{
		Type:     "postgres",
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Name:     *dbName,
	}

	if env := os.Getenv("DB_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Name = env
	}

	db, err := database.NewDB(config)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if *status {
		migrator := database.NewMigrator(db.Conn(), config.Type, logger)
		if err := migrator.Initialize(); err != nil {
			logger.Fatal("failed to initialize migrator", zap.Error(err))
		}

		applied, err := migrator.GetAppliedMigrations()
		if err != nil {
			logger.Fatal("failed to get applied migrations", zap.Error(err))
		}
		migrations, err := migrator.LoadMigrations(*migrationsPath)
		if err != nil {
			logger.Fatal("failed to load migrations", zap.Error(err))
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, m := range migrations {
			state := "pending"
			if applied[m.Version] {
				state = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
		}
		return
	}

	if err := db.RunMigrations(*migrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("migrations completed")
}
