package bot

import (
	"github.com/jvaldez-dev/mlm-rewards/config"
	"github.com/jvaldez-dev/mlm-rewards/internal/service"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the admin/ops surface: it triggers the batch passes and reads
// genealogy statistics on demand.
type Bot struct {
	API     *tgbotapi.BotAPI
	service *service.Service
	logger  *utils.Logger
	config  *config.Config
}

func NewBot(
	api *tgbotapi.BotAPI,
	svc *service.Service,
	logger *utils.Logger,
	cfg *config.Config,
) *Bot {
	return &Bot{
		API:     api,
		service: svc,
		logger:  logger,
		config:  cfg,
	}
}

func (b *Bot) Start() {
	b.logger.Info("Starting admin bot...")
	updates := b.API.GetUpdatesChan(tgbotapi.NewUpdate(0))
	for update := range updates {
		if update.Message == nil {
			continue
		}
		b.HandleUpdate(update)
	}
}
