package telegram

import (
	"fmt"
	"strings"

	"go-internship-scanner/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const topLinks = 10

var (
	markdownEscaper = strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
		")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
		"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
		"}", "\\}", ".", "\\.", "!", "\\!", "\\", "\\\\",
	)
	// inside (...) of an inline link only ')' and '\' are special
	linkEscaper = strings.NewReplacer(")", "\\)", "\\", "\\\\")
)

type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewBot(token string, chatID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Bot{api: api, chatID: chatID}, nil
}

// newBotWithEndpoint points the client at a different Bot API server.
func newBotWithEndpoint(token, endpoint string, chatID int64, client tgbotapi.HTTPClient) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Bot{api: api, chatID: chatID}, nil
}

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// FormatDigest renders the MarkdownV2 summary: counts per family, then the
// first links of the digest.
func FormatDigest(d *report.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎓 *%s*\n", escapeMarkdown(d.Subject()))
	fmt.Fprintf(&b, "%s\n", escapeMarkdown(fmt.Sprintf("%d new postings, %d near misses", len(d.Included), len(d.NearMisses))))

	groups := d.Groups()
	if len(groups) > 0 {
		b.WriteString("\n")
	}
	for _, g := range groups {
		fmt.Fprintf(&b, "• *%s*: %d\n", escapeMarkdown(g.DisplayName), len(g.Postings))
	}

	if len(d.Included) > 0 {
		b.WriteString("\n")
	}
	for i, p := range d.Included {
		if i == topLinks {
			fmt.Fprintf(&b, "%s\n", escapeMarkdown(fmt.Sprintf("...and %d more in the email", len(d.Included)-topLinks)))
			break
		}
		fmt.Fprintf(&b, "%d\\. [%s](%s)\n", i+1, escapeMarkdown(p.Company+" - "+p.Title), linkEscaper.Replace(p.URL))
	}
	return b.String()
}

func (b *Bot) SendDigest(d *report.Digest) error {
	msg := tgbotapi.NewMessage(b.chatID, FormatDigest(d))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendError(err error) error {
	msg := tgbotapi.NewMessage(b.chatID, fmt.Sprintf("❌ Scan failed: %v", err))
	_, sendErr := b.api.Send(msg)
	return sendErr
}

func (b *Bot) SendStatus(message string) error {
	msg := tgbotapi.NewMessage(b.chatID, "ℹ️ "+message)
	_, err := b.api.Send(msg)
	return err
}
