package events

import "testing"

func TestRecorderPreservesOrder(t *testing.T) {
	r := NewRecorder()
	r.Emit(&Event{Type: "a", Attributes: map[string]string{"id": "1"}})
	r.Emit(&Event{Type: "b", Attributes: map[string]string{"id": "2"}})
	r.Emit(&Event{Type: "c", Attributes: map[string]string{"id": "1"}})

	all := r.All()
	if len(all) != 3 || all[0].Type != "a" || all[2].Type != "c" {
		t.Fatalf("unexpected order %v", all)
	}

	matched := r.Filter("id", "1")
	if len(matched) != 2 || matched[0].Type != "a" || matched[1].Type != "c" {
		t.Fatalf("unexpected filter result %v", matched)
	}
}

func TestRecorderClonesEvents(t *testing.T) {
	r := NewRecorder()
	attrs := map[string]string{"id": "1"}
	r.Emit(&Event{Type: "a", Attributes: attrs})
	attrs["id"] = "mutated"

	if got := r.All()[0].Attributes["id"]; got != "1" {
		t.Fatalf("recorder aliased caller attributes: %q", got)
	}
}

func TestRecorderIgnoresNil(t *testing.T) {
	r := NewRecorder()
	r.Emit(nil)
	if len(r.All()) != 0 {
		t.Fatal("nil event recorded")
	}
}
