package main

import (
	"context"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/config"
	"github.com/jvaldez-dev/mlm-rewards/db"
	"github.com/jvaldez-dev/mlm-rewards/internal/bot"
	"github.com/jvaldez-dev/mlm-rewards/internal/repository"
	"github.com/jvaldez-dev/mlm-rewards/internal/service"
	"github.com/jvaldez-dev/mlm-rewards/internal/worker"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	if err := db.SeedRanks(database, logger); err != nil {
		logger.Fatal("Failed to seed ranks: ", err)
	}

	cache, err := db.ConnectRedis(&cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to redis: ", err)
	}

	repo := repository.NewRepository(database, logger)
	svc := service.NewService(repo, cache, &cfg, logger)

	scheduler := worker.NewScheduler(svc, logger,
		time.Duration(cfg.RebateWorkerIntervalMin)*time.Minute)
	go scheduler.Start(context.Background())

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("Failed to create bot API: ", err)
	}

	adminBot := bot.NewBot(api, svc, logger, &cfg)
	adminBot.Start()
}
