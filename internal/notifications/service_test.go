package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"storysync/internal/config"
	"storysync/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventGenerationCompleted, notifications.Payload{"documentName": "Example"})
	if err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "generation completed",
			event: notifications.EventGenerationCompleted,
			payload: notifications.Payload{
				"documentName": "Fox Adventure",
				"scenes":       "5",
			},
			expectTitle:   "StorySync - Generation Complete",
			expectMessage: "All 5 scenes ready: Fox Adventure",
			expectTags:    "storysync,generation,completed",
		},
		{
			name:  "generation completed with errors",
			event: notifications.EventGenerationCompletedWithErrors,
			payload: notifications.Payload{
				"documentName": "Fox Adventure",
				"scenes":       "3",
				"total":        "5",
			},
			expectTitle:   "StorySync - Generation Complete (with errors)",
			expectMessage: "3 of 5 scenes ready: Fox Adventure",
			expectTags:    "storysync,generation,completed",
		},
		{
			name:  "generation failed",
			event: notifications.EventGenerationFailed,
			payload: notifications.Payload{
				"documentName": "Fox Adventure",
				"reason":       "provider quota exceeded",
			},
			expectTitle:    "StorySync - Generation Failed",
			expectMessage:  "Generation failed for Fox Adventure: provider quota exceeded",
			expectTags:     "storysync,generation,failed",
			expectPriority: "high",
		},
		{
			name:  "save failed",
			event: notifications.EventSaveFailed,
			payload: notifications.Payload{
				"documentName": "Fox Adventure",
			},
			expectTitle:    "StorySync - Save Failed",
			expectMessage:  "Could not save Fox Adventure; recent edits are at risk",
			expectTags:     "storysync,save,failed",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventGenerationStarted,
		notifications.EventConnectionLost,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestCollectorRecordsEvents(t *testing.T) {
	collector := &notifications.Collector{}
	if err := collector.Publish(context.Background(), notifications.EventSaveFailed, notifications.Payload{"documentName": "Board"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	events := collector.Events()
	if len(events) != 1 || events[0].Event != notifications.EventSaveFailed {
		t.Fatalf("unexpected events %v", events)
	}
}
