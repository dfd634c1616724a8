package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	b.withAdminCheck(func(update tgbotapi.Update) {
		ctx := context.Background()
		chatID := update.Message.Chat.ID
		text := strings.TrimSpace(update.Message.Text)
		args := strings.Fields(text)
		if len(args) == 0 {
			return
		}

		b.logger.Infof("Admin command: %s", text)

		switch args[0] {
		case "/start", "/help":
			b.handleHelp(chatID)
		case "/pending":
			b.handlePendingRebates(ctx, chatID)
		case "/snapshot":
			b.handleSnapshot(ctx, chatID, args[1:])
		case "/ranks":
			b.handleRankPass(ctx, chatID)
		case "/stats":
			b.handleStats(ctx, chatID, args[1:])
		case "/downline":
			b.handleDownline(ctx, chatID, args[1:])
		default:
			b.sendMessage(chatID, "Unknown command. Use /help.")
		}
	})(update)
}

func (b *Bot) handleHelp(chatID int64) {
	b.sendMessage(chatID,
		"Commands:\n"+
			"/pending - process pending rebates\n"+
			"/snapshot <year> <month> - run binary monthly snapshot\n"+
			"/ranks - run rank advancement pass\n"+
			"/stats <userID> - performance metrics\n"+
			"/downline <userID> - level counts")
}

func (b *Bot) handlePendingRebates(ctx context.Context, chatID int64) {
	summary, err := b.service.ProcessPendingRebates(ctx)
	if err != nil {
		b.logger.Errorf("Failed to process pending rebates: %v", err)
		b.sendMessage(chatID, "Rebate pass failed, check the logs.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"Rebate pass finished:\nprocessed: %d\nfailed: %d\nskipped: %d",
		summary.Processed, summary.Failed, summary.Skipped))
}

func (b *Bot) handleSnapshot(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.sendMessage(chatID, "Usage: /snapshot <year> <month>")
		return
	}
	year, err1 := strconv.Atoi(args[0])
	month, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		b.sendMessage(chatID, "Usage: /snapshot <year> <month>")
		return
	}

	summary, err := b.service.RunMonthlySnapshot(ctx, year, month)
	if err != nil {
		b.logger.Errorf("Failed to run snapshot: %v", err)
		b.sendMessage(chatID, "Snapshot failed, check the logs.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"Snapshot %d-%02d finished:\nprocessed: %d\nfailed: %d",
		year, month, summary.Processed, summary.Failed))
}

func (b *Bot) handleRankPass(ctx context.Context, chatID int64) {
	summary, err := b.service.ProcessAllRankAdvancements(ctx)
	if err != nil {
		b.logger.Errorf("Failed to run rank pass: %v", err)
		b.sendMessage(chatID, "Rank pass failed, check the logs.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"Rank pass finished:\nprocessed: %d\nadvanced: %d\nfailed: %d",
		summary.Processed, summary.Advanced, summary.Failed))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, args []string) {
	userID, ok := b.parseUserID(chatID, args, "/stats <userID>")
	if !ok {
		return
	}

	metrics, err := b.service.GetPerformanceMetrics(ctx, userID)
	if err != nil {
		b.logger.Errorf("Failed to get metrics for user %d: %v", userID, err)
		b.sendMessage(chatID, "Could not load metrics for that user.")
		return
	}

	b.sendMessage(chatID, fmt.Sprintf(
		"User %d:\npersonal sales: %s\nteam sales: %s\nrebates earned: %s\nteam size: %d\nnew members (30d): %d",
		userID, metrics.PersonalSales, metrics.TeamSales, metrics.RebatesEarned,
		metrics.TeamSize, metrics.NewTeamMembers))
}

func (b *Bot) handleDownline(ctx context.Context, chatID int64, args []string) {
	userID, ok := b.parseUserID(chatID, args, "/downline <userID>")
	if !ok {
		return
	}

	counts, err := b.service.GetLevelCounts(ctx, userID, 10)
	if err != nil {
		b.logger.Errorf("Failed to get level counts for user %d: %v", userID, err)
		b.sendMessage(chatID, "Could not load the downline for that user.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Downline of user %d:\n", userID)
	for level := 1; ; level++ {
		count, ok := counts[level]
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "level %d: %d\n", level, count)
	}
	if len(counts) == 0 {
		sb.WriteString("no downline")
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) parseUserID(chatID int64, args []string, usage string) (uint, bool) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Usage: "+usage)
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Usage: "+usage)
		return 0, false
	}
	return uint(id), true
}
