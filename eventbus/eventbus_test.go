package eventbus_test

import (
	"testing"

	"github.com/hexwalker/vertex/eventbus"
)

func TestBus_PublishDispatchesInRegistrationOrder(t *testing.T) {
	b := eventbus.New()
	var order []string

	b.Subscribe(eventbus.TopicDebugger, "first", func(event any) { order = append(order, "first") })
	b.Subscribe(eventbus.TopicDebugger, "second", func(event any) { order = append(order, "second") })

	b.Publish(eventbus.TopicDebugger, "hello")

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v, want [first second]", order)
	}
}

func TestBus_PublishOnlyReachesItsOwnTopic(t *testing.T) {
	b := eventbus.New()
	var gotScan, gotDebugger bool

	b.Subscribe(eventbus.TopicScan, "scanner", func(event any) { gotScan = true })
	b.Subscribe(eventbus.TopicDebugger, "debugger", func(event any) { gotDebugger = true })

	b.Publish(eventbus.TopicScan, "progress")

	if !gotScan {
		t.Error("expected the scan-topic subscriber to fire")
	}
	if gotDebugger {
		t.Error("expected the debugger-topic subscriber not to fire")
	}
}

func TestBus_UnsubscribeRemovesAcrossTopics(t *testing.T) {
	b := eventbus.New()
	calls := 0
	b.Subscribe(eventbus.TopicScan, "ui", func(event any) { calls++ })
	b.Subscribe(eventbus.TopicDebugger, "ui", func(event any) { calls++ })

	b.Unsubscribe("ui")

	b.Publish(eventbus.TopicScan, nil)
	b.Publish(eventbus.TopicDebugger, nil)

	if calls != 0 {
		t.Errorf("calls = %d, want 0 after Unsubscribe", calls)
	}
	if b.SubscriberCount(eventbus.TopicScan) != 0 || b.SubscriberCount(eventbus.TopicDebugger) != 0 {
		t.Error("expected both topics to have zero subscribers after Unsubscribe")
	}
}

func TestBus_PublishIsSynchronous(t *testing.T) {
	b := eventbus.New()
	done := false
	b.Subscribe(eventbus.TopicMonitor, "sync", func(event any) { done = true })

	b.Publish(eventbus.TopicMonitor, nil)

	if !done {
		t.Fatal("expected the handler to have already run when Publish returns")
	}
}

func TestViewCoalescer_MergeAccumulatesAndDrainResets(t *testing.T) {
	c := eventbus.NewViewCoalescer()
	c.Merge(eventbus.FlagRegisters)
	c.Merge(eventbus.FlagStack | eventbus.FlagState)

	got := c.Drain()
	want := eventbus.FlagRegisters | eventbus.FlagStack | eventbus.FlagState
	if got != want {
		t.Errorf("Drain() = %v, want %v", got, want)
	}

	if got := c.Drain(); got != 0 {
		t.Errorf("second Drain() = %v, want 0", got)
	}
}

func TestViewCoalescer_SubscribeMergesFromBus(t *testing.T) {
	b := eventbus.New()
	c := eventbus.NewViewCoalescer()
	c.Subscribe(b, "tui")

	b.Publish(eventbus.TopicView, eventbus.ViewUpdateEvent{Flags: eventbus.FlagBreakpoints})
	b.Publish(eventbus.TopicView, eventbus.ViewUpdateEvent{Flags: eventbus.FlagDisassembly})

	got := c.Drain()
	want := eventbus.FlagBreakpoints | eventbus.FlagDisassembly
	if got != want {
		t.Errorf("Drain() = %v, want %v", got, want)
	}
}
