package pollyadapter

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// maxTextLen is the synthesis limit for plain text input.
const maxTextLen = 3000

type SynthesizeAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Voice struct {
	ID       string
	Engine   string
	Language string
}

type Client struct {
	api   SynthesizeAPI
	voice Voice
}

func New(cfg aws.Config, voice Voice) *Client {
	return &Client{api: polly.NewFromConfig(cfg), voice: voice}
}

func NewWithAPI(api SynthesizeAPI, voice Voice) *Client { return &Client{api: api, voice: voice} }

// Synthesize returns MP3 audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if runes := []rune(text); len(runes) > maxTextLen {
		text = string(runes[:maxTextLen])
	}
	in := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(c.voice.ID),
	}
	if c.voice.Engine != "" {
		in.Engine = types.Engine(c.voice.Engine)
	}
	if c.voice.Language != "" {
		in.LanguageCode = types.LanguageCode(c.voice.Language)
	}
	out, err := c.api.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, err
	}
	if out.AudioStream == nil {
		return nil, errors.New("polly returned no audio")
	}
	defer out.AudioStream.Close()
	return io.ReadAll(out.AudioStream)
}
