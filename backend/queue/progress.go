package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jghoshh/missioncenter/backend/storage/cache"
	"github.com/jghoshh/missioncenter/models"
	"github.com/streadway/amqp"
)

// ProgressQueueName is the durable queue progress events travel on.
const ProgressQueueName = "missionProgress"

// processedKeyPrefix namespaces the de-duplication markers in the cache.
const processedKeyPrefix = "progress_"

// ActivityRecorder stores one entry of a user's progress history.
type ActivityRecorder interface {
	AddActivity(ctx context.Context, activity *models.MissionActivity) error
}

// ProgressEvent is published once per completion record added or removed.
type ProgressEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	MissionID string    `json:"missionId"`
	Week      int       `json:"week"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

// NewProgressEvent builds an event with a fresh id.
func NewProgressEvent(userID, missionID string, week int, completed bool, at time.Time) ProgressEvent {
	return ProgressEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		MissionID: missionID,
		Week:      week,
		Completed: completed,
		At:        at,
	}
}

// Activity converts the event into the history entry the consumer stores.
func (e ProgressEvent) Activity() *models.MissionActivity {
	return &models.MissionActivity{
		ID:        e.ID,
		UserID:    e.UserID,
		MissionID: e.MissionID,
		Week:      e.Week,
		Completed: e.Completed,
		At:        e.At,
	}
}

// ProgressProducerFactory is a struct for creating new ProgressProducer instances.
type ProgressProducerFactory struct{}

// ProgressConsumerFactory is a struct for creating new ProgressConsumer instances.
// Cache de-duplicates redelivered events and Recorder persists them.
type ProgressConsumerFactory struct {
	Cache    storage.CacheInterface
	Recorder ActivityRecorder
}

// ProgressProducer publishes progress events on the AMQP queue.
type ProgressProducer struct {
	channel *amqp.Channel
	queue   *amqp.Queue
}

// ProgressConsumer consumes progress events and records them as activity.
type ProgressConsumer struct {
	channel  *amqp.Channel
	queue    *amqp.Queue
	cache    storage.CacheInterface
	recorder ActivityRecorder
}

// CreateProducer is a method on ProgressProducerFactory for creating a new instance of ProgressProducer.
// It accepts three arguments:
// - conn: A pointer to an AMQP connection.
// - ch: A pointer to an AMQP channel.
// - queue: A pointer to an AMQP queue.
func (f *ProgressProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &ProgressProducer{channel: ch, queue: queue}, nil
}

// CreateConsumer is a method on ProgressConsumerFactory for creating a new instance of ProgressConsumer.
// It accepts three arguments:
// - conn: A pointer to an AMQP connection.
// - ch: A pointer to an AMQP channel.
// - queue: A pointer to an AMQP queue.
//
// Returns an error when the factory has no cache or recorder.
func (f *ProgressConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	if f.Cache == nil || f.Recorder == nil {
		return nil, errors.New("progress consumer needs a cache and a recorder")
	}
	return &ProgressConsumer{
		channel:  ch,
		queue:    queue,
		cache:    f.Cache,
		recorder: f.Recorder,
	}, nil
}

// Publish is a method on ProgressProducer for publishing a message to the AMQP queue.
// Messages are persistent so they survive a broker restart.
func (pp *ProgressProducer) Publish(body []byte) error {
	err := pp.channel.Publish(
		"",            // exchange
		pp.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume is a method on ProgressConsumer for consuming messages from the AMQP queue.
// It registers a consumer with manual acks, then hands every delivery to handle
// in a goroutine until ctx is done or the channel closes.
func (pc *ProgressConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := pc.channel.Consume(
		pc.queue.Name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}
				pc.handle(ctx, d)
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// handle settles exactly one delivery:
// undecodable bodies are rejected for good, events already seen are acked,
// new events are recorded and acked, transient failures are requeued.
func (pc *ProgressConsumer) handle(ctx context.Context, d amqp.Delivery) {
	event := &ProgressEvent{}
	if err := json.Unmarshal(d.Body, event); err != nil || event.ID == "" {
		log.Printf("dropping malformed progress event: %v", err)
		d.Reject(false)
		return
	}

	key := processedKeyPrefix + event.ID
	var processed bool
	err := pc.cache.Get(ctx, key, &processed)
	if err != nil && !errors.Is(err, storage.ErrCacheMiss) {
		log.Printf("error checking cache: %v", err)
		d.Nack(false, true)
		return
	}
	if processed {
		d.Ack(false)
		return
	}

	if err := pc.recorder.AddActivity(ctx, event.Activity()); err != nil {
		log.Printf("failed to record progress event %s: %v", event.ID, err)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
	if err := pc.cache.Set(ctx, key, true, storage.DefaultTTL); err != nil {
		log.Printf("failed to set key in cache: %v", err)
	}
}

// BuildProgressQueue initializes a new Queue for progress events.
// It accepts five arguments:
// - rabbitMQURL: A string containing the URL of the RabbitMQ server.
// - numProducers: An integer indicating the number of producers to create.
// - numConsumers: An integer indicating the number of consumers to create.
// - c: The cache used to de-duplicate deliveries.
// - recorder: Where consumed events are stored.
func BuildProgressQueue(rabbitMQURL string, numProducers, numConsumers int, c storage.CacheInterface, recorder ActivityRecorder) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := range prodFactories {
		prodFactories[i] = &ProgressProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := range consFactories {
		consFactories[i] = &ProgressConsumerFactory{Cache: c, Recorder: recorder}
	}

	return InitQueue(rabbitMQURL, ProgressQueueName, prodFactories, consFactories)
}

// PublishProgress serializes each event and publishes it.
// It stops at the first failure.
func (q *Queue) PublishProgress(events ...ProgressEvent) error {
	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal progress event: %w", err)
		}
		if err := q.Publish(body); err != nil {
			return fmt.Errorf("failed to publish progress event: %w", err)
		}
	}
	return nil
}

// DiffProgress returns one event per completion record that differs between
// before and after. A nil before counts as an empty aggregate.
func DiffProgress(userID string, before, after *models.UserMissionProgress, at time.Time) []ProgressEvent {
	var prev, next map[string]models.MissionCompletion
	if before != nil {
		prev = before.CompletedMissions
	}
	if after != nil {
		next = after.CompletedMissions
	}

	var events []ProgressEvent
	for id, rec := range next {
		if _, ok := prev[id]; !ok {
			events = append(events, NewProgressEvent(userID, id, rec.Week, true, at))
		}
	}
	for id, rec := range prev {
		if _, ok := next[id]; !ok {
			events = append(events, NewProgressEvent(userID, id, rec.Week, false, at))
		}
	}
	return events
}
