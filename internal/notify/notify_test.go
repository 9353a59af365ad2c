package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/florianilch/gerente/internal/notify"
)

func TestNotificationJSON(t *testing.T) {
	tests := []struct {
		name string
		in   notify.Notification
		want string
	}{
		{
			name: "without duration",
			in:   notify.Notification{Message: "saved", Type: notify.TypeSuccess},
			want: `{"message":"saved","type":"success"}`,
		},
		{
			name: "duration in milliseconds",
			in:   notify.Notification{Message: "slow down", Type: notify.TypeWarning, Duration: 5 * time.Second},
			want: `{"message":"slow down","type":"warning","duration":5000}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}

			var back notify.Notification
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back != tt.in {
				t.Errorf("decoded %+v, want %+v", back, tt.in)
			}
		})
	}
}

func TestDisplayDuration(t *testing.T) {
	if d := (notify.Notification{}).DisplayDuration(); d != notify.DefaultDuration {
		t.Errorf("default duration = %v, want %v", d, notify.DefaultDuration)
	}
	if d := (notify.Notification{Duration: time.Second}).DisplayDuration(); d != time.Second {
		t.Errorf("explicit duration = %v, want 1s", d)
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	ctx := context.Background()
	b := notify.NewBroadcaster(4)

	first, cancelFirst := b.Subscribe()
	defer cancelFirst()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	b.Notify(ctx, notify.Notification{Message: "boom", Type: notify.TypeError})
	b.SessionExpired(ctx, notify.SessionExpired{Reason: "renewal failed", Redirect: notify.LoginPath})

	for name, ch := range map[string]<-chan notify.Event{"first": first, "second": second} {
		ev := <-ch
		if ev.Notification == nil || ev.Notification.Message != "boom" {
			t.Errorf("%s: first event = %+v, want notification boom", name, ev)
		}
		ev = <-ch
		if ev.SessionExpired == nil || ev.SessionExpired.Redirect != notify.LoginPath {
			t.Errorf("%s: second event = %+v, want session expired", name, ev)
		}
	}
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	b := notify.NewBroadcaster(1)

	ch, cancel := b.Subscribe()
	defer cancel()

	// Second notification must not block even though nobody reads
	b.Notify(ctx, notify.Notification{Message: "one", Type: notify.TypeInfo})
	b.Notify(ctx, notify.Notification{Message: "two", Type: notify.TypeInfo})

	ev := <-ch
	if ev.Notification.Message != "one" {
		t.Errorf("got %q, want one", ev.Notification.Message)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := notify.NewBroadcaster(1)

	ch, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", b.Subscribers())
	}
	cancel()
	cancel()

	if b.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", b.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing without subscribers is a no-op
	b.Notify(context.Background(), notify.Notification{Message: "nobody listens"})
}

type recordingNotifier struct {
	notifications []notify.Notification
	expirations   []notify.SessionExpired
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) SessionExpired(_ context.Context, ev notify.SessionExpired) {
	r.expirations = append(r.expirations, ev)
}

func TestMulti(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := notify.Multi{a, b, notify.Discard}

	m.Notify(context.Background(), notify.Notification{Message: "x"})
	m.SessionExpired(context.Background(), notify.SessionExpired{Reason: "y"})

	for _, r := range []*recordingNotifier{a, b} {
		if len(r.notifications) != 1 || len(r.expirations) != 1 {
			t.Errorf("recorder got %d notifications, %d expirations, want 1 and 1", len(r.notifications), len(r.expirations))
		}
	}
}
