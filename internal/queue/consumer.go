package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer drains both confirmation queues and appends one line per event
// to logs/enrollment.log.  It stands in for the welcome-notification
// subsystem, which owns email delivery.
type Consumer struct {
    url     string
    logPath string
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string) *Consumer {
    return &Consumer{url: url, logPath: filepath.Join("logs", "enrollment.log")}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Broker
// outages are retried with exponential backoff capped at 30s; a message
// that cannot be handled is rejected without requeue so it cannot spin.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            log.Printf("enrollment-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("enrollment-consumer: consume loop ended: %v; reconnecting", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("enrollment-consumer: set QoS failed: %v", err)
    }

    reservations, err := c.subscribe(ch, ReservationConfirmedQueue)
    if err != nil {
        return err
    }
    enrollments, err := c.subscribe(ch, EnrollmentConfirmedQueue)
    if err != nil {
        return err
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-reservations:
            if !ok {
                return errors.New("reservation deliveries channel closed")
            }
            c.settle(d, formatReservationLine)
        case d, ok := <-enrollments:
            if !ok {
                return errors.New("enrollment deliveries channel closed")
            }
            c.settle(d, formatEnrollmentLine)
        }
    }
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", queue, err)
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", queue, err)
    }
    return msgs, nil
}

func (c *Consumer) settle(d amqp.Delivery, format func([]byte) (string, error)) {
    line, err := format(d.Body)
    if err == nil {
        err = c.appendLine(line)
    }
    if err != nil {
        log.Printf("enrollment-consumer: handle message failed: %v", err)
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
        return
    }
    _ = d.Ack(false)
}

func (c *Consumer) appendLine(line string) error {
    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatReservationLine(body []byte) (string, error) {
    var ev ReservationConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return "", fmt.Errorf("unmarshal: %w", err)
    }
    if len(ev.ReservationIDs) == 0 {
        return "", errors.New("reservation event without reservation ids")
    }
    ids := make([]string, len(ev.ReservationIDs))
    for i, id := range ev.ReservationIDs {
        ids[i] = fmt.Sprint(id)
    }
    return fmt.Sprintf("[%s] Welcome queued | reservations=[%s] | student=%q <%s> | teacher=%q | slots=[%s] | payment_id=%s\n",
        ev.ConfirmedAt, strings.Join(ids, ","), ev.StudentName, ev.StudentEmail, ev.TeacherName,
        strings.Join(ev.SlotDescriptions, "; "), ev.PaymentID), nil
}

func formatEnrollmentLine(body []byte) (string, error) {
    var ev EnrollmentConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return "", fmt.Errorf("unmarshal: %w", err)
    }
    return fmt.Sprintf("[%s] Enrollment confirmed | mode=%s | title=%q | student=%q <%s> | group=%s | payment_id=%s\n",
        ev.ConfirmedAt, ev.Mode, ev.Title, ev.StudentName, ev.StudentEmail, ev.GroupCorrelationID, ev.PaymentID), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
