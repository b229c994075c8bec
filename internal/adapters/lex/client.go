package lex

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lexruntimev2"
	"github.com/aws/aws-sdk-go-v2/service/lexruntimev2/types"

	"github.com/BengeeL/Dental-Chatbot/internal/usecase"
)

// RuntimeAPI is the subset of the Lex V2 runtime client used here.
type RuntimeAPI interface {
	RecognizeText(ctx context.Context, in *lexruntimev2.RecognizeTextInput, optFns ...func(*lexruntimev2.Options)) (*lexruntimev2.RecognizeTextOutput, error)
}

type Bot struct {
	ID       string
	AliasID  string
	LocaleID string
}

type Client struct {
	api RuntimeAPI
	bot Bot
}

func New(cfg aws.Config, bot Bot) *Client {
	return &Client{api: lexruntimev2.NewFromConfig(cfg), bot: bot}
}

func NewWithAPI(api RuntimeAPI, bot Bot) *Client { return &Client{api: api, bot: bot} }

func (c *Client) RecognizeText(ctx context.Context, sessionID, text string) (*usecase.NLUReply, error) {
	if c.bot.ID == "" || c.bot.AliasID == "" {
		return nil, errors.New("lex bot is not configured")
	}
	out, err := c.api.RecognizeText(ctx, &lexruntimev2.RecognizeTextInput{
		BotId:      aws.String(c.bot.ID),
		BotAliasId: aws.String(c.bot.AliasID),
		LocaleId:   aws.String(c.bot.LocaleID),
		SessionId:  aws.String(sessionID),
		Text:       aws.String(text),
	})
	if err != nil {
		return nil, err
	}

	reply := &usecase.NLUReply{}
	var parts []string
	for _, m := range out.Messages {
		if content := strings.TrimSpace(aws.ToString(m.Content)); content != "" {
			parts = append(parts, content)
		}
	}
	reply.Text = strings.Join(parts, " ")

	if out.SessionState != nil && out.SessionState.Intent != nil {
		intent := out.SessionState.Intent
		reply.Intent = aws.ToString(intent.Name)
		reply.Slots = slotValues(intent.Slots)
	}
	return reply, nil
}

func slotValues(slots map[string]types.Slot) map[string]string {
	if len(slots) == 0 {
		return nil
	}
	values := make(map[string]string, len(slots))
	for name, slot := range slots {
		if slot.Value == nil {
			continue
		}
		v := aws.ToString(slot.Value.InterpretedValue)
		if v == "" {
			v = aws.ToString(slot.Value.OriginalValue)
		}
		if v != "" {
			values[name] = v
		}
	}
	return values
}
