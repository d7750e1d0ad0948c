package broadcast

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNopDiscardsEvents(t *testing.T) {
	var b Broadcaster = Nop{}
	// Must accept any event, including the zero value, without side effects.
	b.Broadcast(Event{})
	b.Broadcast(Event{
		Type:      ChangeCreated,
		Path:      "src/app.js",
		Content:   "console.log(1)",
		SandboxID: "sbx-1",
	})
}

func TestEventWireShape(t *testing.T) {
	ev := Event{
		Type:      ChangeCreated,
		Path:      "src/app.js",
		Content:   "console.log(1)",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SandboxID: "sbx-1",
		ProjectID: "p1",
		UserID:    "u1",
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)

	// Consumers key on these exact field names.
	for _, field := range []string{`"type":"created"`, `"path":"src/app.js"`, `"sandboxID":"sbx-1"`, `"projectID":"p1"`, `"userID":"u1"`} {
		if !strings.Contains(payload, field) {
			t.Errorf("payload missing %s: %s", field, payload)
		}
	}
}

func TestDeleteEventOmitsContent(t *testing.T) {
	data, err := json.Marshal(Event{
		Type:      ChangeDeleted,
		Path:      "src/app.js",
		SandboxID: "sbx-1",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	if strings.Contains(payload, "content") {
		t.Errorf("deletion payload carries a content field: %s", payload)
	}
	if !strings.Contains(payload, `"type":"deleted"`) {
		t.Errorf("payload missing deleted type: %s", payload)
	}
}
