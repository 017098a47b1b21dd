package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
)

func TestKafkaProducerEnqueue(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var d models.Descriptor
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		if d.ID != "job-1" {
			return errors.New("unexpected id " + d.ID)
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaProducer(sp, "gifpipe.jobs")
	if err := p.Enqueue(context.Background(), descriptor("job-1")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := p.Enqueue(context.Background(), descriptor("job-2")); err == nil {
		t.Fatal("expected broker failure to surface")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type recordingProducer struct {
	sent []models.Descriptor
	err  error
}

func (r *recordingProducer) Enqueue(ctx context.Context, d models.Descriptor) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, d)
	return nil
}

func message(t *testing.T, d models.Descriptor) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return &sarama.ConsumerMessage{Topic: "gifpipe.jobs", Value: b}
}

func TestKafkaHandle(t *testing.T) {
	failing := func(ctx context.Context, d models.Descriptor) error { return errors.New("boom") }
	ok := func(ctx context.Context, d models.Descriptor) error { return nil }

	exhausted := descriptor("b")
	exhausted.Attempt = 2

	tests := []struct {
		name     string
		fn       Handler
		requeue  *recordingProducer
		msg      models.Descriptor
		raw      []byte
		wantMark bool
		wantSent int
	}{
		{name: "success", fn: ok, requeue: &recordingProducer{}, msg: descriptor("a"), wantMark: true},
		{name: "retry", fn: failing, requeue: &recordingProducer{}, msg: descriptor("a"), wantMark: true, wantSent: 1},
		{name: "requeue fails", fn: failing, requeue: &recordingProducer{err: errors.New("down")}, msg: descriptor("a"), wantMark: false},
		{name: "exhausted", fn: failing, requeue: &recordingProducer{}, msg: exhausted, wantMark: true},
		{name: "malformed", fn: ok, requeue: &recordingProducer{}, raw: []byte("nope"), wantMark: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewKafkaConsumer(KafkaOptions{Topic: "gifpipe.jobs", Group: "g", MaxAttempts: 3}, tt.requeue, logger.Discard())
			h := &groupHandler{ctx: context.Background(), fn: tt.fn, consumer: c}

			msg := &sarama.ConsumerMessage{Value: tt.raw}
			if tt.raw == nil {
				msg = message(t, tt.msg)
			}
			if got := h.handle(msg); got != tt.wantMark {
				t.Errorf("handle() = %v, want %v", got, tt.wantMark)
			}
			if len(tt.requeue.sent) != tt.wantSent {
				t.Fatalf("requeued %d, want %d", len(tt.requeue.sent), tt.wantSent)
			}
			if tt.wantSent == 1 && tt.requeue.sent[0].Attempt != tt.msg.Attempt+1 {
				t.Errorf("requeued attempt = %d", tt.requeue.sent[0].Attempt)
			}
		})
	}
}
