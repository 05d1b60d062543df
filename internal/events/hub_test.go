package events

import (
	"testing"
)

func TestHub_PublishDeliversToTopicSubscribers(t *testing.T) {
	h := NewHub()
	courses, unsubCourses := h.Subscribe(TopicCourses)
	defer unsubCourses()
	videos, unsubVideos := h.Subscribe(TopicVideos)
	defer unsubVideos()

	h.Publish(Event{Topic: TopicCourses, Type: "created", IDs: []string{"c1"}})

	select {
	case ev := <-courses:
		if ev.Type != "created" || len(ev.IDs) != 1 || ev.IDs[0] != "c1" {
			t.Errorf("received %+v, want created c1", ev)
		}
	default:
		t.Fatal("courses subscriber received nothing")
	}

	select {
	case ev := <-videos:
		t.Errorf("videos subscriber received %+v, want nothing", ev)
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe(TopicNotes)
	if got := h.Subscribers(TopicNotes); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}

	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
	if got := h.Subscribers(TopicNotes); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(Event{Topic: TopicNotes})
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe(TopicProgress)
	defer unsub()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(Event{Topic: TopicProgress})
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}
