// Package notify delivers pipeline results to chat channels: one message per
// new article, one embed per summarized grant, and error reports to a
// dedicated error channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/model"
	"github.com/sells-group/newswatch/pkg/discord"
)

// Notifier publishes pipeline results.
type Notifier interface {
	// ArticleFound announces one newly tracked article on its category channel.
	ArticleFound(ctx context.Context, article model.Article) error
	// GrantSummarized announces one newly summarized grant.
	GrantSummarized(ctx context.Context, grant model.Grant) error
}

// ErrorSink receives per-unit pipeline failures. Implementations must not
// fail the pipeline: reporting is best effort.
type ErrorSink interface {
	ReportError(ctx context.Context, scope string, err error)
}

// DiscordNotifier routes notifications to Discord channels by category.
type DiscordNotifier struct {
	client   discord.Client
	channels map[model.Category]string
	grantsCh string
	errorCh  string
}

// NewDiscord creates a notifier. channels maps each category to its channel
// id; grantsCh and errorCh are the grant and error channels.
func NewDiscord(client discord.Client, channels map[model.Category]string, grantsCh, errorCh string) *DiscordNotifier {
	return &DiscordNotifier{
		client:   client,
		channels: channels,
		grantsCh: grantsCh,
		errorCh:  errorCh,
	}
}

// ArticleFound posts "[Source] [headline](url)" to the article's category
// channel.
func (n *DiscordNotifier) ArticleFound(ctx context.Context, article model.Article) error {
	channelID, ok := n.channels[article.Category]
	if !ok {
		return eris.Errorf("notify: no channel configured for category %q", article.Category)
	}

	content := fmt.Sprintf("[%s] [%s](%s)", article.Source, article.Headline, article.URL)
	if err := n.client.SendMessage(ctx, channelID, content); err != nil {
		return eris.Wrapf(err, "notify: article %s", article.URL)
	}
	return nil
}

// GrantSummarized posts an embed carrying the grant topic, summary, and link.
func (n *DiscordNotifier) GrantSummarized(ctx context.Context, grant model.Grant) error {
	if n.grantsCh == "" {
		return eris.New("notify: no grants channel configured")
	}

	var summary string
	if grant.Summary != nil {
		summary = *grant.Summary
	}
	embed := discord.Embed{
		Title:       grant.Topic,
		Description: summary,
		URL:         grant.Link,
		Color:       discord.ColorGrant,
	}
	if err := n.client.SendEmbed(ctx, n.grantsCh, embed); err != nil {
		return eris.Wrapf(err, "notify: grant %s", grant.Link)
	}
	return nil
}

// ReportError posts a red embed to the error channel. Failures to report are
// logged and swallowed so a broken error channel never takes down a run.
func (n *DiscordNotifier) ReportError(ctx context.Context, scope string, reported error) {
	if n.errorCh == "" {
		zap.L().Warn("notify: error channel not configured, dropping report",
			zap.String("scope", scope),
			zap.Error(reported),
		)
		return
	}

	embed := discord.Embed{
		Title:       fmt.Sprintf("Tracking error: %s", scope),
		Description: truncate(reported.Error(), 4000),
		Color:       discord.ColorError,
	}
	if err := n.client.SendEmbed(ctx, n.errorCh, embed); err != nil {
		zap.L().Error("notify: error report failed",
			zap.String("scope", scope),
			zap.NamedError("reported", reported),
			zap.Error(err),
		)
	}
}

// truncate keeps s within the embed description limit.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
