package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstranscribe "github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

var (
	ErrJobFailed  = errors.New("transcription job failed")
	ErrNoSpeech   = errors.New("transcript is empty")
	errInProgress = errors.New("transcription job in progress")
)

// JobAPI is the subset of the Transcribe client used here.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, in *awstranscribe.StartTranscriptionJobInput, optFns ...func(*awstranscribe.Options)) (*awstranscribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *awstranscribe.GetTranscriptionJobInput, optFns ...func(*awstranscribe.Options)) (*awstranscribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, in *awstranscribe.DeleteTranscriptionJobInput, optFns ...func(*awstranscribe.Options)) (*awstranscribe.DeleteTranscriptionJobOutput, error)
}

// ObjectAPI stores the uploaded recording and the job output.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Bucket       string
	Prefix       string
	LanguageCode string
	PollInterval time.Duration
	// MaxPolls bounds how many status checks a job gets before it is abandoned.
	MaxPolls uint64
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "temp-recordings/"
	}
	if o.LanguageCode == "" {
		o.LanguageCode = "en-US"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxPolls == 0 {
		o.MaxPolls = 30
	}
	return o
}

// Client runs batch transcription jobs: upload, start, poll, read the transcript, clean up.
type Client struct {
	jobs    JobAPI
	objects ObjectAPI
	opts    Options
	newID   func() string
}

func New(cfg aws.Config, opts Options) *Client {
	return NewWithAPI(awstranscribe.NewFromConfig(cfg), s3.NewFromConfig(cfg), opts)
}

func NewWithAPI(jobs JobAPI, objects ObjectAPI, opts Options) *Client {
	return &Client{jobs: jobs, objects: objects, opts: opts.withDefaults(), newID: uuid.NewString}
}

type transcriptFile struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

// Transcribe converts a short recording to text. The caller's ctx bounds the whole job.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if c.opts.Bucket == "" {
		return "", errors.New("transcribe bucket is not configured")
	}
	if len(audio) == 0 {
		return "", errors.New("empty recording")
	}
	format := MediaFormat(contentType)
	id := c.newID()
	audioKey := fmt.Sprintf("%s%s.%s", c.opts.Prefix, id, format)
	outputKey := fmt.Sprintf("%s%s.json", c.opts.Prefix, id)
	jobName := "transcribe-" + id

	if _, err := c.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.opts.Bucket),
		Key:         aws.String(audioKey),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	defer c.cleanup(ctx, jobName, audioKey, outputKey)

	if _, err := c.jobs.StartTranscriptionJob(ctx, &awstranscribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		Media:                &types.Media{MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", c.opts.Bucket, audioKey))},
		MediaFormat:          format,
		LanguageCode:         types.LanguageCode(c.opts.LanguageCode),
		OutputBucketName:     aws.String(c.opts.Bucket),
		OutputKey:            aws.String(outputKey),
	}); err != nil {
		return "", fmt.Errorf("start transcription job: %w", err)
	}

	if err := c.wait(ctx, jobName); err != nil {
		return "", err
	}
	return c.readTranscript(ctx, outputKey)
}

func (c *Client) wait(ctx context.Context, jobName string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.PollInterval), c.opts.MaxPolls),
		ctx,
	)
	err := backoff.Retry(func() error {
		out, err := c.jobs.GetTranscriptionJob(ctx, &awstranscribe.GetTranscriptionJobInput{TranscriptionJobName: aws.String(jobName)})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get transcription job: %w", err))
		}
		if out.TranscriptionJob == nil {
			return errInProgress
		}
		switch out.TranscriptionJob.TranscriptionJobStatus {
		case types.TranscriptionJobStatusCompleted:
			return nil
		case types.TranscriptionJobStatusFailed:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrJobFailed, aws.ToString(out.TranscriptionJob.FailureReason)))
		default:
			return errInProgress
		}
	}, policy)
	if errors.Is(err, errInProgress) {
		return fmt.Errorf("transcription job %s timed out after %d polls", jobName, c.opts.MaxPolls)
	}
	return err
}

func (c *Client) readTranscript(ctx context.Context, key string) (string, error) {
	out, err := c.objects.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.opts.Bucket), Key: aws.String(key)})
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	var file transcriptFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	if len(file.Results.Transcripts) == 0 || strings.TrimSpace(file.Results.Transcripts[0].Transcript) == "" {
		return "", ErrNoSpeech
	}
	return strings.TrimSpace(file.Results.Transcripts[0].Transcript), nil
}

// cleanup runs even when ctx is already cancelled so recordings never outlive the request.
func (c *Client) cleanup(ctx context.Context, jobName string, keys ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, _ = c.jobs.DeleteTranscriptionJob(ctx, &awstranscribe.DeleteTranscriptionJobInput{TranscriptionJobName: aws.String(jobName)})
	for _, key := range keys {
		_, _ = c.objects.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.opts.Bucket), Key: aws.String(key)})
	}
}

// MediaFormat maps a recording's content type to a job media format, defaulting to webm.
func MediaFormat(contentType string) types.MediaFormat {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return types.MediaFormatMp3
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return types.MediaFormatMp4
	case "audio/wav", "audio/x-wav", "audio/wave":
		return types.MediaFormatWav
	case "audio/ogg":
		return types.MediaFormatOgg
	case "audio/flac":
		return types.MediaFormatFlac
	default:
		return types.MediaFormatWebm
	}
}
