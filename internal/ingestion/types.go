// Package ingestion defines the request, response and Kafka event types of
// asynchronous training: strings accepted over HTTP or from the CLI are
// published as TrainingEvents and applied to the model by the consumer.
package ingestion

import "time"

// TrainRequest is the JSON body accepted by the training endpoints.
type TrainRequest struct {
	Strings []string `json:"strings"`
}

// TrainResponse is returned after training strings are accepted.
type TrainResponse struct {
	Status   string   `json:"status"`
	Strings  int      `json:"strings"`
	Batches  int      `json:"batches,omitempty"`
	BatchIDs []string `json:"batch_ids,omitempty"`
}

// TrainingEvent is the Kafka message payload carrying one training batch.
type TrainingEvent struct {
	BatchID     string    `json:"batch_id"`
	Namespace   string    `json:"namespace"`
	Strings     []string  `json:"strings"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}
