package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "taskbot/pkg/logx"
)

// TelegramSink sends rendered payloads through telebot. Sends are rate
// limited (Telegram tolerates short bursts, not sustained floods) and bounded
// by a per-send timeout so a wedged API call can't stall a whole sweep tick.
type TelegramSink struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewTelegramSink(bot *tele.Bot, ratePerSec int, timeout time.Duration, log logx.Logger) *TelegramSink {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramSink{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		timeout: timeout,
		log:     log,
	}
}

func (s *TelegramSink) Send(ctx context.Context, to Target, p Payload) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.bot.Send(
		&tele.Chat{ID: to.ChatID},
		renderText(p),
		&tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true},
	)
	if err != nil {
		s.log.Warn("telegram send failed",
			logx.Int64("chat_id", to.ChatID),
			logx.Int64("task_id", p.TaskID),
			logx.String("kind", string(p.Kind)),
			logx.Err(err))
	}
	return err
}
