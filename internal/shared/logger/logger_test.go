package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"local", "prod"} {
		l, err := New("race-manager", env)
		if err != nil {
			t.Fatalf("%s: %v", env, err)
		}
		_ = l.Sync()
	}
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := CronLogger{L: zap.New(core)}

	cl.Info("schedule", "entry", 1)
	cl.Error(errors.New("boom"), "panic", "entry", 1)

	if logs.Len() != 2 {
		t.Fatalf("got %d entries", logs.Len())
	}
	last := logs.All()[1]
	if last.Level != zap.ErrorLevel || last.ContextMap()["error"] == nil {
		t.Fatalf("unexpected entry: %+v", last)
	}
}
