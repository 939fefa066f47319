package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elonfeng/shelfradar/internal/config"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/elonfeng/shelfradar/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNotifyManagerWiresEnabledChannels(t *testing.T) {
	var slackHits, discordHits, webhookHits atomic.Int32
	hook := func(n *atomic.Int32) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n.Add(1)
		}))
		t.Cleanup(srv.Close)
		return srv
	}
	slack, discord, webhook := hook(&slackHits), hook(&discordHits), hook(&webhookHits)

	assert.False(t, buildNotifyManager(config.NotifyConfig{}).HasNotifiers())

	m := buildNotifyManager(config.NotifyConfig{
		Slack:   config.SlackConfig{Enabled: true, WebhookURL: slack.URL},
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: discord.URL},
		Webhook: config.WebhookConfig{Enabled: false, URL: webhook.URL},
	})
	require.True(t, m.HasNotifiers())

	run := &catalog.ScoreRun{ID: "run", WindowDays: 30, BooksScored: 4, FinishedAt: time.Now()}
	require.NoError(t, m.Broadcast(context.Background(), notify.ScoresReplaced(run)))

	assert.Equal(t, int32(1), slackHits.Load())
	assert.Equal(t, int32(1), discordHits.Load())
	assert.Equal(t, int32(0), webhookHits.Load())
}
