package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/pkg/telegram"
)

// TelegramSender Bot API 出站调用（生产环境为 *telegram.Client）
type TelegramSender interface {
	SendMessage(ctx context.Context, msg telegram.OutgoingMessage) error
	SendInvoice(ctx context.Context, inv telegram.Invoice) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// BotService Telegram 机器人的会话菜单和支付回调。
// update 通过 webhook 进来，用 tgbotapi 的类型解析；
// successful_payment 是支付生效的唯一入口，按 telegram_payment_charge_id 幂等。
type BotService struct {
	access   *AccessService
	payments *PaymentService
	sender   TelegramSender
	cfg      *config.Config
}

func NewBotService(
	access *AccessService,
	payments *PaymentService,
	sender TelegramSender,
	cfg *config.Config,
) *BotService {
	return &BotService{
		access:   access,
		payments: payments,
		sender:   sender,
		cfg:      cfg,
	}
}

// HandleUpdate 分发一条 webhook update。
// 返回错误会让 webhook 响应 5xx，Telegram 会重新投递，
// 支付通知绝不能静默丢弃，靠幂等标记保证重投安全。
func (s *BotService) HandleUpdate(ctx context.Context, upd *tgbotapi.Update) error {
	switch {
	case upd.PreCheckoutQuery != nil:
		return s.sender.AnswerPreCheckoutQuery(ctx, upd.PreCheckoutQuery.ID, true, "")
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		return s.handleSuccessfulPayment(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		return s.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.IsCommand():
		if upd.Message.Command() == "start" {
			return s.sendMenu(ctx, upd.Message.Chat.ID, upd.Message.From.ID)
		}
		return nil
	default:
		return nil
	}
}

func (s *BotService) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) error {
	pay := msg.SuccessfulPayment
	chargeID := pay.TelegramPaymentChargeID
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if uid, duration, ok := decodeInvoicePayload(pay.InvoicePayload); ok {
		rec, applied, err := s.payments.ActivatePaidAccess(ctx, uid, duration, chargeID, pay.TotalAmount, pay.InvoicePayload)
		if err != nil {
			// 套餐下架后旧账单仍可能被支付，重投也不会成功，只入账审计
			if errors.Is(err, ErrInvalidDuration) {
				return s.payments.RecordDonation(ctx, uid, chargeID, pay.InvoicePayload, pay.TotalAmount)
			}
			return fmt.Errorf("failed to activate paid access: %w", err)
		}
		if !applied {
			return nil // 重复投递，确认消息已经发过
		}

		until := ""
		if rec.PaidUntil != nil {
			until = rec.PaidUntil.UTC().Format("02.01.2006 15:04 MST")
		}
		return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
			ChatID: chatID,
			Text: "✅ *Безлимитный доступ активирован!*\n\n" +
				"Действует до: " + until + "\n\n" +
				"Откройте карты и наслаждайтесь раскладами 🔮",
			ParseMode:   "Markdown",
			ReplyMarkup: s.openCardsKeyboard(),
		})
	}

	if strings.HasPrefix(pay.InvoicePayload, "donation") {
		if err := s.payments.RecordDonation(ctx, userID, chargeID, pay.InvoicePayload, pay.TotalAmount); err != nil {
			return fmt.Errorf("failed to record donation: %w", err)
		}
		return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
			ChatID: chatID,
			Text:   "💝 Спасибо за поддержку проекта!",
		})
	}

	// 未知 payload：入账审计，不动权限
	return s.payments.RecordDonation(ctx, userID, chargeID, pay.InvoicePayload, pay.TotalAmount)
}

func (s *BotService) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if err := s.sender.AnswerCallbackQuery(ctx, query.ID); err != nil {
		return err
	}

	// inline 模式发起的 callback 没有 message，没有会话可回复
	if query.Message == nil {
		return nil
	}

	chatID := query.Message.Chat.ID
	userID := query.From.ID
	data := query.Data

	switch {
	case data == "buy_access":
		return s.sendAccessInvoice(ctx, chatID, userID)
	case data == "donate":
		return s.showDonationOptions(ctx, chatID)
	case strings.HasPrefix(data, "donation_"):
		return s.sendDonationInvoice(ctx, chatID, data)
	case data == "help":
		return s.showHelp(ctx, chatID)
	case data == "back_to_menu":
		return s.sendMenu(ctx, chatID, userID)
	default:
		return nil
	}
}

func (s *BotService) sendMenu(ctx context.Context, chatID, userID int64) error {
	info, err := s.access.Check(ctx, userID)
	if err != nil {
		return err
	}

	statusText := ""
	switch {
	case info.HasAccess && info.IsPaid:
		statusText = "\n✅ У вас активен безлимитный доступ"
	case info.HasAccess && info.AttemptsLeft != nil:
		statusText = fmt.Sprintf("\n🎁 Бесплатных попыток: %d", *info.AttemptsLeft)
	case !info.HasAccess:
		statusText = "\n⚠️ Бесплатные попытки закончились"
	}

	keyboard := telegram.NewInlineKeyboard(
		telegram.Row(telegram.WebAppButton("🔮 Открыть карты Таро", s.cfg.Telegram.WebAppURL)),
		telegram.Row(telegram.CallbackButton("⭐ Купить доступ на сутки (10 Stars)", "buy_access")),
		telegram.Row(telegram.CallbackButton("💝 Поддержать проект", "donate")),
		telegram.Row(telegram.CallbackButton("❓ Помощь", "help")),
	)

	return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID: chatID,
		Text: "🔮 *Добро пожаловать в Оракул Пути Героя!*\n\n" +
			"✨ Получите совет от карт Таро на сегодня\n" +
			statusText + "\n\n" +
			"📋 *Как это работает:*\n" +
			"• 5 бесплатных раскладов в сутки\n" +
			"• После — безлимит за 10 ⭐ на 24 часа\n" +
			"• Отсчет начинается с первой попытки",
		ParseMode:   "Markdown",
		ReplyMarkup: keyboard,
	})
}

func (s *BotService) sendAccessInvoice(ctx context.Context, chatID, userID int64) error {
	info, err := s.access.Check(ctx, userID)
	if err != nil {
		return err
	}

	if info.HasAccess && info.IsPaid {
		return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
			ChatID:      chatID,
			Text:        "✅ У вас уже есть активный безлимитный доступ!\n\nОткройте приложение и наслаждайтесь раскладами.",
			ReplyMarkup: s.openCardsKeyboard(),
		})
	}

	plan, ok := s.cfg.Payment.Plan(24)
	if !ok {
		return fmt.Errorf("no 24h payment plan configured")
	}

	payload := fmt.Sprintf(`{"user_id":%d,"duration":%d}`, userID, plan.Hours)
	return s.sender.SendInvoice(ctx, telegram.Invoice{
		ChatID:      chatID,
		Title:       "⭐ Безлимитный доступ на сутки",
		Description: "Получите неограниченное количество раскладов на 24 часа",
		Payload:     payload,
		Currency:    s.cfg.Payment.Currency,
		Prices:      []telegram.LabeledPrice{{Label: "Доступ на сутки", Amount: plan.Stars}},
		PhotoURL:    s.cfg.Telegram.CardImageURL,
		PhotoWidth:  400,
		PhotoHeight: 600,
	})
}

func (s *BotService) showDonationOptions(ctx context.Context, chatID int64) error {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(s.cfg.Payment.Donations)+1)
	for _, d := range s.cfg.Payment.Donations {
		label := fmt.Sprintf("%s (%d ⭐)", d.Title, d.Stars)
		rows = append(rows, telegram.Row(telegram.CallbackButton(label, d.Kind)))
	}
	rows = append(rows, telegram.Row(telegram.CallbackButton("« Назад", "back_to_menu")))

	return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID: chatID,
		Text: "💝 *Поддержите развитие проекта!*\n\n" +
			"Ваши донаты помогают улучшать приложение и добавлять новые функции.\n\n" +
			"Выберите удобную для вас сумму:",
		ParseMode:   "Markdown",
		ReplyMarkup: telegram.NewInlineKeyboard(rows...),
	})
}

func (s *BotService) sendDonationInvoice(ctx context.Context, chatID int64, kind string) error {
	donation, ok := s.cfg.Payment.Donation(kind)
	if !ok {
		return nil
	}

	return s.sender.SendInvoice(ctx, telegram.Invoice{
		ChatID:      chatID,
		Title:       donation.Title,
		Description: "Спасибо за поддержку!",
		Payload:     donation.Kind,
		Currency:    s.cfg.Payment.Currency,
		Prices:      []telegram.LabeledPrice{{Label: donation.Title, Amount: donation.Stars}},
	})
}

func (s *BotService) showHelp(ctx context.Context, chatID int64) error {
	return s.sender.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID: chatID,
		Text: "❓ *Помощь*\n\n" +
			"🔮 *Как пользоваться:*\n1. Нажмите \"Открыть карты Таро\"\n2. Вытяните карту дня\n3. Получите толкование\n\n" +
			"⭐ *Система попыток:*\n• Каждый день — 5 бесплатных раскладов\n• Отсчет начинается с первой попытки\n• После 5 попыток — безлимит за 10 Stars\n• Через 24 часа счетчик обнуляется\n\n" +
			"💝 *Поддержка:*\nВы можете поддержать проект добровольным донатом\n\n" +
			"📧 Напишите /start для возврата в главное меню",
		ParseMode:   "Markdown",
		ReplyMarkup: telegram.NewInlineKeyboard(telegram.Row(telegram.CallbackButton("« Назад в меню", "back_to_menu"))),
	})
}

func (s *BotService) openCardsKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(
		telegram.Row(telegram.WebAppButton("🔮 Открыть карты", s.cfg.Telegram.WebAppURL)),
	)
}
