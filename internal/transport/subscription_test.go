package transport

import "testing"

func TestSubscriptionTableAddReportsNewTopic(t *testing.T) {
	tbl := newSubscriptionTable()
	cb := func(string, []byte) {}

	if isNew := tbl.add("t1", cb); !isNew {
		t.Fatal("expected first add to report isNewTopic=true")
	}
	if isNew := tbl.add("t1", cb); isNew {
		t.Fatal("expected second add on same topic to report isNewTopic=false")
	}
}

func TestSubscriptionTableCallbacksForReturnsSnapshot(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.add("t1", func(string, []byte) {})
	tbl.add("t1", func(string, []byte) {})

	cbs := tbl.callbacksFor("t1")
	if len(cbs) != 2 {
		t.Fatalf("len(callbacksFor) = %d, want 2", len(cbs))
	}
	if got := tbl.callbacksFor("missing"); got != nil {
		t.Fatalf("callbacksFor(missing) = %v, want nil", got)
	}
}

func TestSubscriptionTableRemove(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.add("t1", func(string, []byte) {})

	if existed := tbl.remove("t1"); !existed {
		t.Fatal("expected remove to report existed=true")
	}
	if existed := tbl.remove("t1"); existed {
		t.Fatal("expected second remove to report existed=false")
	}
	if cbs := tbl.callbacksFor("t1"); cbs != nil {
		t.Fatalf("callbacksFor after remove = %v, want nil", cbs)
	}
}

func TestSubscriptionTableTopicsSnapshot(t *testing.T) {
	tbl := newSubscriptionTable()
	tbl.add("t1", func(string, []byte) {})
	tbl.add("t2", func(string, []byte) {})

	topics := tbl.topics()
	found := map[string]bool{}
	for _, tp := range topics {
		found[tp] = true
	}
	if !found["t1"] || !found["t2"] {
		t.Fatalf("topics() = %v, want t1 and t2 present", topics)
	}
}
