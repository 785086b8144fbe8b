package queue

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/lingua-enrollment/internal/monitoring"
)

// Publisher sends confirmation events to RabbitMQ.  It dials per publish:
// confirmations are rare and this keeps the publisher free of connection
// state.  Errors are logged and returned so the caller can decide whether
// to ignore them.  Messages are marked as persistent.
type Publisher struct {
    url string
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// PublishReservationConfirmed publishes to the reservation.confirmed queue.
func (p *Publisher) PublishReservationConfirmed(ctx context.Context, ev ReservationConfirmedEvent) error {
    return p.publish(ctx, ReservationConfirmedQueue, ev)
}

// PublishEnrollmentConfirmed publishes to the enrollment.confirmed queue.
func (p *Publisher) PublishEnrollmentConfirmed(ctx context.Context, ev EnrollmentConfirmedEvent) error {
    return p.publish(ctx, EnrollmentConfirmedQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event interface{}) (err error) {
    defer func() {
        if err != nil {
            monitoring.PublishFailed(queue)
        }
    }()

    body, err := json.Marshal(event)
    if err != nil {
        log.Printf("rabbitmq: marshal %s event failed: %v", queue, err)
        return err
    }

    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        queue, // name
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,   // args
    ); err != nil {
        log.Printf("rabbitmq: queue declare %s failed: %v", queue, err)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",    // default exchange
        queue, // routing key = queue name
        false, // mandatory
        false, // immediate
        pub,
    ); err != nil {
        log.Printf("rabbitmq: publish to %s failed: %v", queue, err)
        return err
    }
    return nil
}
