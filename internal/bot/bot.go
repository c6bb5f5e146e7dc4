package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/models"
	"github.com/maxtel-dev/bingwa-sokoni-bot/internal/services"
)

const sessionExpiredText = "Session expired. Please start over with /start"

// Bot is the Telegram presentation adapter. It renders menus and routes
// user input to the purchase service; every decision lives in the service.
type Bot struct {
	api         *tgbotapi.BotAPI
	purchases   *services.PurchaseService
	supportLine string
}

func New(token string, purchases *services.PurchaseService, supportLine string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return &Bot{api: api, purchases: purchases, supportLine: supportLine}, nil
}

// Run processes updates until ctx is cancelled. One update is handled to
// completion before the next, matching the single-threaded dispatch the
// session store assumes for a given user.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	log.Info().Str("username", b.api.Self.UserName).Msg("bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(update.Message)
	case update.Message != nil:
		b.handlePhoneEntry(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMenu(msg.Chat.ID, msg.From.FirstName)
	case "help":
		b.send(msg.Chat.ID, b.helpText())
	default:
		b.send(msg.Chat.ID, "Unknown command. Try /start")
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Always acknowledge so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Warn().Err(err).Msg("callback ack failed")
	}

	userID := query.From.ID
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data

	switch {
	case data == "data" || data == "sms" || data == "voice":
		b.edit(chatID, messageID, fmt.Sprintf("Please select a %s bundle:", data), bundlesKeyboard(data))
	case strings.HasPrefix(data, "select_"):
		b.handleSelect(chatID, messageID, userID, data)
	case data == "check":
		b.handleConfirm(ctx, chatID, messageID, userID)
	case data == "resend":
		b.handleResend(ctx, chatID, messageID, userID)
	case data == "cancel":
		b.handleCancel(chatID, messageID, userID)
	case data == "my_transactions":
		b.handleTransactions(ctx, chatID, messageID, userID)
	case data == "help":
		b.editPlain(chatID, messageID, b.helpText())
	case data == "back":
		b.edit(chatID, messageID, b.welcomeText(query.From.FirstName), mainMenuKeyboard())
	default:
		log.Warn().Str("data", data).Msg("unhandled callback data")
	}
}

func (b *Bot) handleSelect(chatID int64, messageID int, userID int64, data string) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 {
		b.editPlain(chatID, messageID, sessionExpiredText)
		return
	}

	session, err := b.purchases.SelectBundle(userID, parts[1], parts[2])
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("bundle selection failed")
		b.editPlain(chatID, messageID, "That bundle is no longer available. Please start over with /start")
		return
	}

	b.editPlain(chatID, messageID, fmt.Sprintf(
		"Selected: %s @ Ksh %d\n\n"+
			"Please enter the Safaricom phone number to purchase for:\n"+
			"Format: 07XXXXXXXX or 2547XXXXXXXX",
		session.BundleName, session.Price))
}

func (b *Bot) handlePhoneEntry(ctx context.Context, msg *tgbotapi.Message) {
	session, err := b.purchases.SubmitPhone(ctx, msg.From.ID, msg.Text)
	switch {
	case errors.Is(err, services.ErrInvalidPhone):
		b.send(msg.Chat.ID, "Invalid phone format. Please use 07XXXXXXXX or 2547XXXXXXXX")
	case errors.Is(err, services.ErrSessionExpired):
		b.send(msg.Chat.ID, sessionExpiredText)
	case err != nil:
		log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("payment initiation failed")
		b.send(msg.Chat.ID, "Failed to initiate payment. Please try again later or contact support.")
	default:
		reply := tgbotapi.NewMessage(msg.Chat.ID, b.pushSentText(session.Phone))
		reply.ReplyMarkup = paymentKeyboard()
		if _, err := b.api.Send(reply); err != nil {
			log.Error().Err(err).Msg("send failed")
		}
	}
}

func (b *Bot) handleConfirm(ctx context.Context, chatID int64, messageID int, userID int64) {
	outcome, session, err := b.purchases.Confirm(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrSessionExpired) {
			b.editPlain(chatID, messageID, sessionExpiredText)
		} else {
			log.Error().Err(err).Int64("user_id", userID).Msg("confirm failed")
			b.editPlain(chatID, messageID, "Could not verify payment right now. Please try again shortly.")
		}
		return
	}

	switch outcome {
	case services.ConfirmCompleted:
		b.editPlain(chatID, messageID, fmt.Sprintf(
			"✅ Payment confirmed! Your bundle will be activated shortly.\n"+
				"You'll receive an SMS confirmation on %s.\n\n"+
				"Thank you for using Bingwa Sokoni!", session.Phone))
	case services.ConfirmFailed:
		b.editPlain(chatID, messageID,
			"❌ The payment did not go through. You can start a new purchase anytime with /start")
	default:
		b.edit(chatID, messageID,
			"Payment not confirmed yet. Check your phone for the M-Pesa prompt, then confirm again below.",
			paymentKeyboard())
	}
}

func (b *Bot) handleResend(ctx context.Context, chatID int64, messageID int, userID int64) {
	session, err := b.purchases.Resend(ctx, userID)
	switch {
	case errors.Is(err, services.ErrSessionExpired):
		b.editPlain(chatID, messageID, sessionExpiredText)
	case err != nil:
		log.Error().Err(err).Int64("user_id", userID).Msg("resend failed")
		b.editPlain(chatID, messageID, "Failed to resend payment request. Please try again later.")
	default:
		b.edit(chatID, messageID, b.pushSentText(session.Phone), paymentKeyboard())
	}
}

func (b *Bot) handleCancel(chatID int64, messageID int, userID int64) {
	if err := b.purchases.Cancel(userID); err != nil {
		b.editPlain(chatID, messageID, sessionExpiredText)
		return
	}
	b.editPlain(chatID, messageID, fmt.Sprintf(
		"Purchase cancelled. You can start a new purchase anytime with /start\n\n"+
			"For assistance, contact support: %s", b.supportLine))
}

func (b *Bot) handleTransactions(ctx context.Context, chatID int64, messageID int, userID int64) {
	txns, err := b.purchases.Transactions(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("transaction history fetch failed")
		b.editPlain(chatID, messageID, "Could not load your transactions. Please try again later.")
		return
	}
	if len(txns) == 0 {
		b.editPlain(chatID, messageID, "📋 You have no transactions yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Your Recent Transactions:\n\n")
	for _, txn := range txns {
		icon := "❌"
		if txn.Status == models.StatusCompleted {
			icon = "✅"
		}
		fmt.Fprintf(&sb, "%s %s (Ksh %d)\n📞 %s | 📅 %s\nStatus: %s\n\n",
			icon, txn.BundleCode, txn.Amount, txn.Phone,
			txn.CreatedAt.Format("2006-01-02 15:04"), txn.Status)
	}
	b.editPlain(chatID, messageID, sb.String())
}

func (b *Bot) sendMenu(chatID int64, firstName string) {
	msg := tgbotapi.NewMessage(chatID, b.welcomeText(firstName))
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("send failed")
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Msg("send failed")
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)); err != nil {
		log.Error().Err(err).Msg("edit failed")
	}
}

func (b *Bot) editPlain(chatID int64, messageID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		log.Error().Err(err).Msg("edit failed")
	}
}

func (b *Bot) welcomeText(firstName string) string {
	return fmt.Sprintf("Karibu %s to Bingwa Sokoni by Safaricom!\n\n"+
		"I can help you purchase mobile data, SMS, and calling minute packages easily via M-Pesa.", firstName)
}

func (b *Bot) pushSentText(phone string) string {
	return fmt.Sprintf("Payment request sent to %s.\n\n"+
		"1. Check your phone for M-Pesa STK Push\n"+
		"2. Enter your M-Pesa PIN when prompted\n"+
		"3. Confirm payment below once completed", phone)
}

func (b *Bot) helpText() string {
	return fmt.Sprintf("Need help?\n\nContact customer care:\n📞 %s\n🕒 24/7 support\n\nTo start over, type /start", b.supportLine)
}
