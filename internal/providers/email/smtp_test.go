package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/mediavault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplate(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "smtp.test", Port: 2525, From: "MediaVault <no-reply@mediavault.local>"})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"jane@example.com"}, "payment_succeeded", map[string]any{
		"name":       "Jane",
		"plan_name":  "Pro",
		"amount":     "299.00 EGP",
		"payment_id": "123",
		"end_date":   "2026-04-15",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "no-reply@mediavault.local", gotFrom)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your MediaVault subscription is active")
	assert.True(t, strings.Contains(gotMsg, "<strong>Pro</strong>"))
}

func TestSendRequiresRecipients(t *testing.T) {
	err := NewSMTP(Config{Host: "smtp.test"}).Send(context.Background(), nil, "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	assert.IsType(t, &NoOpProvider{}, NewFromConfig(config.Config{}))
	assert.IsType(t, &SMTPProvider{}, NewFromConfig(config.Config{SMTP: config.SMTPConfig{Host: "smtp.test", Port: 25}}))
}
