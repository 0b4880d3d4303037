package announce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

func sample() events.RaceAnnouncement {
	w := 3
	return events.RaceAnnouncement{
		Kind:       events.RaceFinished,
		RaceID:     7,
		StartTime:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Placements: []int{3, 1, 2},
		Winner:     &w,
		WinnerName: "Rex",
		BetsWon:    1,
		Paid:       "40",
	}
}

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafka_KeyedByRace(t *testing.T) {
	w := &fakeWriter{}
	if err := (Kafka{W: w}).Announce(context.Background(), sample()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "7" {
		t.Fatalf("messages: %+v", w.msgs)
	}
	var got events.RaceAnnouncement
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != events.RaceFinished || *got.Winner != 3 || got.WinnerName != "Rex" {
		t.Fatalf("payload: %+v", got)
	}
}

type fakeRedis struct {
	channel string
	payload []byte
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedis_PublishesOnChannel(t *testing.T) {
	r := &fakeRedis{}
	p := Redis{R: r, Channel: "race_announcements"}
	if err := p.Announce(context.Background(), sample()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if r.channel != "race_announcements" {
		t.Fatalf("channel: %q", r.channel)
	}
	var got events.RaceAnnouncement
	if err := json.Unmarshal(r.payload, &got); err != nil || got.RaceID != 7 {
		t.Fatalf("payload: %s (%v)", r.payload, err)
	}
}

func TestFanout_DeliversToAllAndCombinesErrors(t *testing.T) {
	var calls int
	ok := Func(func(context.Context, events.RaceAnnouncement) error { calls++; return nil })
	bad := Func(func(context.Context, events.RaceAnnouncement) error { calls++; return errors.New("broker down") })

	err := Fanout{bad, ok, bad}.Announce(context.Background(), sample())
	if calls != 3 {
		t.Fatalf("calls: %d", calls)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d (%v)", n, err)
	}
	if err := (Fanout{ok}).Announce(context.Background(), sample()); err != nil {
		t.Fatalf("no failures: %v", err)
	}
}

func TestLog_WritesEachKind(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := Log{L: zap.New(core)}
	for _, k := range []events.AnnouncementKind{events.RaceScheduled, events.RaceStarting, events.RaceRunning, events.RaceFinished} {
		a := sample()
		a.Kind = k
		_ = l.Announce(context.Background(), a)
	}
	if logs.Len() != 4 {
		t.Fatalf("entries: %d", logs.Len())
	}
	if got := logs.FilterMessage("race finished").All(); len(got) != 1 || got[0].ContextMap()["winner_name"] != "Rex" {
		t.Fatalf("finished entry: %+v", got)
	}
}
