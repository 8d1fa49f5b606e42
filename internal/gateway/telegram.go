package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/veritas/internal/admission"
	"github.com/rahul/veritas/internal/agent"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
)

// telegramMaxMessage is Telegram's limit on one message, in characters.
const telegramMaxMessage = 4096

type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Answerer  Answerer
	Admission *admission.Controller
	Logger    *observability.Logger
	Status    *observability.Status
	Timeout   time.Duration
}

func NewTelegramGateway(token string, answerer Answerer, admit *admission.Controller, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}

	logger.Slog().Info("telegram authorized", slog.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:       bot,
		Answerer:  answerer,
		Admission: admit,
		Logger:    logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			tg.Logger.Slog().InfoContext(ctx, "telegram message",
				slog.String("from", update.Message.From.UserName),
				slog.Int64("chat", update.Message.Chat.ID),
			)

			reply := tg.handle(ctx, update.Message.Chat.ID, update.Message.Text)
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
			if _, err := tg.Bot.Send(msg); err != nil {
				tg.Logger.Slog().WarnContext(ctx, "telegram send failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handle answers one chat message. Each chat is its own admission client.
func (tg *TelegramGateway) handle(ctx context.Context, chatID int64, text string) string {
	if tg.Admission != nil {
		d, release := tg.Admission.Admit(ctx, "tg:"+strconv.FormatInt(chatID, 10))
		defer release()
		if !d.Admitted() {
			tg.Status.Reject()
			wait := int(admission.RetrySeconds(d.RetryAfter) / time.Second)
			if d.Outcome == admission.RejectedRate {
				return fmt.Sprintf("You're asking too fast. Try again in %ds.", wait)
			}
			return fmt.Sprintf("I'm busy with other questions. Try again in %ds.", wait)
		}
	}

	if tg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tg.Timeout)
		defer cancel()
	}

	resp, err := tg.Answerer.Answer(ctx, agent.Query{Text: text})
	if err != nil {
		tg.Logger.Slog().WarnContext(ctx, "telegram question failed", slog.String("error", err.Error()))
		return userMessage(err)
	}
	return observability.Truncate(renderReply(resp), telegramMaxMessage)
}

// renderReply puts the evidence behind the answer under it.
func renderReply(resp *agent.Response) string {
	var b strings.Builder
	b.WriteString(resp.Answer)

	var evidence []string
	for _, e := range resp.Provenance {
		switch e.Type {
		case trace.KindQuery:
			evidence = append(evidence, fmt.Sprintf("%d. %s", e.Step, e.Action))
		case trace.KindSearch:
			for _, src := range e.Sources {
				evidence = append(evidence, fmt.Sprintf("%d. %s", e.Step, src.URL))
			}
		}
	}
	if len(evidence) > 0 {
		b.WriteString("\n\nSources:\n")
		b.WriteString(strings.Join(evidence, "\n"))
	}
	if resp.Metadata.Degraded {
		b.WriteString("\n\n(partial answer: " + resp.Metadata.DegradedReason + ")")
	}
	return b.String()
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, observability.Truncate(text, telegramMaxMessage))
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
