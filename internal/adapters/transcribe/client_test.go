package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstranscribe "github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	statuses []types.TranscriptionJobStatus
	polls    int
	started  *awstranscribe.StartTranscriptionJobInput
	deleted  []string
	getErr   error
}

func (f *fakeJobs) StartTranscriptionJob(_ context.Context, in *awstranscribe.StartTranscriptionJobInput, _ ...func(*awstranscribe.Options)) (*awstranscribe.StartTranscriptionJobOutput, error) {
	f.started = in
	return &awstranscribe.StartTranscriptionJobOutput{}, nil
}

func (f *fakeJobs) GetTranscriptionJob(_ context.Context, _ *awstranscribe.GetTranscriptionJobInput, _ ...func(*awstranscribe.Options)) (*awstranscribe.GetTranscriptionJobOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	status := types.TranscriptionJobStatusInProgress
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	return &awstranscribe.GetTranscriptionJobOutput{TranscriptionJob: &types.TranscriptionJob{
		TranscriptionJobStatus: status,
		FailureReason:          aws.String("unsupported media"),
	}}, nil
}

func (f *fakeJobs) DeleteTranscriptionJob(_ context.Context, in *awstranscribe.DeleteTranscriptionJobInput, _ ...func(*awstranscribe.Options)) (*awstranscribe.DeleteTranscriptionJobOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.TranscriptionJobName))
	return &awstranscribe.DeleteTranscriptionJobOutput{}, nil
}

type fakeObjects struct {
	objects map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestClient(jobs *fakeJobs, objects *fakeObjects, maxPolls uint64) *Client {
	c := NewWithAPI(jobs, objects, Options{Bucket: "recordings", PollInterval: time.Millisecond, MaxPolls: maxPolls})
	c.newID = func() string { return "abc" }
	return c
}

func TestTranscribeCompletedJob(t *testing.T) {
	jobs := &fakeJobs{statuses: []types.TranscriptionJobStatus{
		types.TranscriptionJobStatusQueued,
		types.TranscriptionJobStatusInProgress,
		types.TranscriptionJobStatusCompleted,
	}}
	objects := newFakeObjects()
	objects.objects["temp-recordings/abc.json"] = []byte(`{"results":{"transcripts":[{"transcript":" I need a cleaning "}]}}`)

	text, err := newTestClient(jobs, objects, 10).Transcribe(context.Background(), []byte("webm-bytes"), "audio/webm;codecs=opus")
	require.NoError(t, err)
	require.Equal(t, "I need a cleaning", text)
	require.Equal(t, 3, jobs.polls)

	require.Equal(t, "transcribe-abc", aws.ToString(jobs.started.TranscriptionJobName))
	require.Equal(t, types.MediaFormatWebm, jobs.started.MediaFormat)
	require.Equal(t, types.LanguageCode("en-US"), jobs.started.LanguageCode)
	require.Equal(t, "s3://recordings/temp-recordings/abc.webm", aws.ToString(jobs.started.Media.MediaFileUri))
	require.Equal(t, []byte("webm-bytes"), objects.objects["temp-recordings/abc.webm"])

	require.Equal(t, []string{"transcribe-abc"}, jobs.deleted)
	require.ElementsMatch(t, []string{"temp-recordings/abc.webm", "temp-recordings/abc.json"}, objects.deleted)
}

func TestTranscribeFailedJobStopsPolling(t *testing.T) {
	jobs := &fakeJobs{statuses: []types.TranscriptionJobStatus{types.TranscriptionJobStatusFailed}}
	_, err := newTestClient(jobs, newFakeObjects(), 10).Transcribe(context.Background(), []byte("x"), "audio/wav")
	require.ErrorIs(t, err, ErrJobFailed)
	require.Contains(t, err.Error(), "unsupported media")
	require.Equal(t, 1, jobs.polls)
	require.Equal(t, types.MediaFormatWav, jobs.started.MediaFormat)
	require.Len(t, jobs.deleted, 1)
}

func TestTranscribeGivesUpAfterMaxPolls(t *testing.T) {
	jobs := &fakeJobs{}
	_, err := newTestClient(jobs, newFakeObjects(), 3).Transcribe(context.Background(), []byte("x"), "audio/webm")
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
	require.Equal(t, 4, jobs.polls)
}

func TestTranscribeHonoursContext(t *testing.T) {
	jobs := &fakeJobs{}
	c := NewWithAPI(jobs, newFakeObjects(), Options{Bucket: "recordings", PollInterval: 50 * time.Millisecond, MaxPolls: 1000})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Transcribe(ctx, []byte("x"), "audio/webm")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, jobs.polls, 5)
	require.Len(t, jobs.deleted, 1)
}

func TestTranscribeStatusError(t *testing.T) {
	jobs := &fakeJobs{getErr: errors.New("throttled")}
	_, err := newTestClient(jobs, newFakeObjects(), 10).Transcribe(context.Background(), []byte("x"), "")
	require.ErrorContains(t, err, "throttled")
}

func TestTranscribeEmptyTranscript(t *testing.T) {
	jobs := &fakeJobs{statuses: []types.TranscriptionJobStatus{types.TranscriptionJobStatusCompleted}}
	objects := newFakeObjects()
	objects.objects["temp-recordings/abc.json"] = []byte(`{"results":{"transcripts":[]}}`)
	_, err := newTestClient(jobs, objects, 10).Transcribe(context.Background(), []byte("x"), "audio/mpeg")
	require.ErrorIs(t, err, ErrNoSpeech)
}

func TestTranscribeRequiresBucket(t *testing.T) {
	c := NewWithAPI(&fakeJobs{}, newFakeObjects(), Options{})
	_, err := c.Transcribe(context.Background(), []byte("x"), "audio/webm")
	require.Error(t, err)
}

func TestMediaFormat(t *testing.T) {
	require.Equal(t, types.MediaFormatMp3, MediaFormat("audio/mpeg"))
	require.Equal(t, types.MediaFormatOgg, MediaFormat("Audio/OGG"))
	require.Equal(t, types.MediaFormatWebm, MediaFormat(""))
}
