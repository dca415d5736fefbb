package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/pkg/retry"
)

// Defaults for the job stream.
const (
	DefaultStream  = "DMOD_JOBS"
	DefaultSubject = "dmod.jobs.submitted"
)

// Publisher is the slice of natsclient.Client a NATSSink needs.
type Publisher interface {
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	PublishToStream(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// NATSSink publishes accepted jobs to a JetStream stream, where the
// execution layer consumes them.
type NATSSink struct {
	pub     Publisher
	subject string
	retry   retry.Config
	logger  *slog.Logger
}

// NewNATSSink ensures the job stream exists and returns a sink publishing
// on subject. An empty subject uses DefaultSubject.
func NewNATSSink(ctx context.Context, pub Publisher, subject string, logger *slog.Logger) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	_, err := pub.EnsureStream(ctx, jetstream.StreamConfig{
		Name:        DefaultStream,
		Description: "Accepted DMOD model jobs",
		Subjects:    []string{subject},
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "jobs", "NewNATSSink", "ensure stream")
	}
	return &NATSSink{
		pub:     pub,
		subject: subject,
		retry:   retry.DefaultConfig(),
		logger:  logger.With("component", "jobs", "subject", subject),
	}, nil
}

// Submit implements Sink. Transient publish failures are retried.
func (s *NATSSink) Submit(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return errors.WrapInvalid(err, "jobs", "Submit", "encode job")
	}

	var ack *jetstream.PubAck
	err = errors.Retry(ctx, s.retry, func() error {
		var err error
		ack, err = s.pub.PublishToStream(ctx, s.subject, raw)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "jobs", "Submit", "publish job "+job.ID)
	}
	s.logger.Info("job submitted", "job_id", job.ID, "job_type", job.JobType,
		"cpus", job.CPUCount, "stream", ack.Stream, "seq", ack.Sequence)
	return nil
}

var _ Sink = (*NATSSink)(nil)
