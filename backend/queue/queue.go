package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/streadway/amqp"
)

// Producer interface provides the Publish method to publish messages to RabbitMQ.
// Publish sends a message body as a byte array to RabbitMQ.
// Returns an error if there was a problem.
type Producer interface {
	Publish(body []byte) error
}

// Consumer interface provides the Consume method to consume messages from RabbitMQ.
// Consume registers on the queue and handles the message stream until ctx is done.
type Consumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// ProducerFactory interface provides the CreateProducer method to instantiate new producers.
type ProducerFactory interface {
	CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error)
}

// ConsumerFactory interface provides the CreateConsumer method to instantiate new consumers.
type ConsumerFactory interface {
	CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error)
}

// Queue struct holds slices of Producers and Consumers which can be used to send and consume messages.
type Queue struct {
	Producers []Producer
	Consumers []Consumer

	next uint64
	conn *amqp.Connection
}

// connect function establishes a connection to RabbitMQ and opens a new channel.
// The function listens for closure of connection and logs any closure error.
// Returns the RabbitMQ connection, channel, and an error if there was a problem.
func connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	notifyClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(notifyClose)

	go func() {
		if err := <-notifyClose; err != nil {
			log.Printf("RabbitMQ connection closed: %v", err)
		}
	}()

	return conn, ch, nil
}

// InitQueue function initializes a Queue with producers and consumers.
// It accepts four arguments:
// - url: The RabbitMQ connection URL.
// - queueName: The name of the durable queue to declare.
// - prodFactories: One factory per producer to create.
// - consFactories: One factory per consumer to create.
//
// The queue is declared durable, not auto-deleted, and not exclusive.
// Returns the Queue or an error if the broker could not be reached or set up.
func InitQueue(url string, queueName string, prodFactories []ProducerFactory, consFactories []ConsumerFactory) (*Queue, error) {
	conn, ch, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}

	queue, err := ch.QueueDeclare(
		queueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring queue: %w", err)
	}

	q := &Queue{conn: conn}
	for _, prodFactory := range prodFactories {
		producer, err := prodFactory.CreateProducer(conn, ch, &queue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error creating producer: %w", err)
		}
		q.Producers = append(q.Producers, producer)
	}

	for _, consFactory := range consFactories {
		// Each consumer gets its own channel so prefetch and acks do not interleave.
		consCh, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error opening consumer channel: %w", err)
		}
		if err := consCh.Qos(1, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("error setting prefetch: %w", err)
		}
		consumer, err := consFactory.CreateConsumer(conn, consCh, &queue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("error creating consumer: %w", err)
		}
		q.Consumers = append(q.Consumers, consumer)
	}

	return q, nil
}

// Publish sends body through the producers in round-robin order.
func (q *Queue) Publish(body []byte) error {
	producerCount := len(q.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}
	i := atomic.AddUint64(&q.next, 1) - 1
	return q.Producers[i%uint64(producerCount)].Publish(body)
}

// StartConsumers starts all consumers in the queue, each in its own goroutine.
// Consumers stop once ctx is cancelled; the returned WaitGroup is done when
// every consumer has been registered or has failed to register.
func (q *Queue) StartConsumers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	for _, consumer := range q.Consumers {
		wg.Add(1)

		go func(c Consumer) {
			defer wg.Done()

			if _, err := c.Consume(ctx); err != nil {
				log.Printf("Error starting consumer: %v", err)
			}
		}(consumer)
	}

	return &wg
}

// Close closes the broker connection, which also stops every consumer.
func (q *Queue) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
