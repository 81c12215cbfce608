package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"vibroscope/internal/alerts"
	"vibroscope/internal/model"
	"vibroscope/internal/storage"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type failingSink struct{ err error }

func (f failingSink) Deliver(context.Context, []model.AlertEvent) error { return f.err }

func sampleEvents() []model.AlertEvent {
	return []model.AlertEvent{
		{ID: "a", Kind: model.AlertRaised, StreamID: "cam", Region: model.RegionID{X: 1, Y: 2}, Seq: 10},
		{ID: "b", Kind: model.AlertCleared, StreamID: "cam", Region: model.RegionID{X: 3, Y: 0}, Seq: 11},
	}
}

func TestKafkaSinkKeysByRegion(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWriter(w)
	if err := k.Deliver(context.Background(), sampleEvents()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(w.msgs) != 2 || string(w.msgs[0].Key) != "cam/1/2" {
		t.Fatalf("messages %+v", w.msgs)
	}
	var ev model.AlertEvent
	if err := json.Unmarshal(w.msgs[1].Value, &ev); err != nil || ev.Kind != model.AlertCleared || ev.Seq != 11 {
		t.Fatalf("payload %s: %v", w.msgs[1].Value, err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	store := alerts.NewStore(10)
	boom := errors.New("boom")
	m := Multi{NewMemory(store), failingSink{err: boom}, nil, NewLog(nil)}
	err := m.Deliver(context.Background(), sampleEvents())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("memory sink skipped after failure: %d", store.Len())
	}
}

func TestKafkaSinkWrapsError(t *testing.T) {
	boom := errors.New("no brokers")
	k := NewKafkaWriter(&fakeWriter{err: boom})
	if err := k.Deliver(context.Background(), sampleEvents()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestStorageSinkPersists(t *testing.T) {
	st, err := storage.NewSQLite("file:sinktest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	if err := st.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := NewStorage(st).Deliver(ctx, sampleEvents()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got, err := st.RecentAlerts(ctx, 10)
	if err != nil || len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("stored %+v: %v", got, err)
	}
}
