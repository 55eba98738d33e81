package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type jobsPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) *gcppubsub.PublishResult
}

// pubsubDispatcher publishes jobs on the generation jobs topic.
type pubsubDispatcher struct {
	publisher jobsPublisher
}

// NewPubSubDispatcher builds a topic-based dispatcher.
func NewPubSubDispatcher(publisher jobsPublisher) (Dispatcher, error) {
	if publisher == nil {
		return nil, errors.New("jobs publisher required")
	}
	return &pubsubDispatcher{publisher: publisher}, nil
}

func (d *pubsubDispatcher) Dispatch(ctx context.Context, job Job) error {
	if job.JobID == "" {
		return errors.New("job id is required")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job payload: %w", err)
	}

	result := d.publisher.Publish(ctx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"job_id":     job.JobID,
			"media_type": string(job.MediaType),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}
	return nil
}
