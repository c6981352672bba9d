package railflow

import (
	"errors"
	"testing"
	"time"
)

func TestRegistrationExportsPropagateErrors(t *testing.T) {
	if err := RegisterMessageHandler(nil, MessageHandlerRegistration{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestConstructorExportsValidateInput(t *testing.T) {
	if _, err := NewSink(nil, NewNopLogger()); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected store required error, got %v", err)
	}
	if _, err := NewRelayPublisher(nil, NewNopLogger()); !errors.Is(err, ErrPublisherRequired) {
		t.Fatalf("expected publisher required error, got %v", err)
	}
}

func TestClassifierExport(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	batch, err := NewClassifier().Classify([]byte(`[{"header":{"msg_type":"0001"},"body":{"train_id":"T1"}}]`))
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}
	if len(batch.Events) != 1 || batch.Events[0].Kind() != KindActivation {
		t.Fatalf("expected one activation, got %#v", batch.Events)
	}
	if got := FormatTimestamp(now); got != "2024-05-01T10:00:00.000Z" {
		t.Fatalf("unexpected timestamp %q", got)
	}
}

func TestTopicExports(t *testing.T) {
	kind, err := KindForTopic(TopicCancellation)
	if err != nil || kind != KindCancellation {
		t.Fatalf("expected cancellation kind, got %q (%v)", kind, err)
	}
	if _, err := KindForTopic("train_unknown"); !errors.Is(err, ErrUnknownEventKind) {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"trainId": "T1"}
	data, err := Marshal(payload)
	if err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	var out map[string]string
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
	if out["trainId"] != "T1" {
		t.Fatalf("unexpected round trip %#v", out)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyCorrelationID, "corr-1")
	if md[MetadataKeyCorrelationID] != "corr-1" {
		t.Fatalf("expected metadata to contain correlation id, got %#v", md)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("boot", LogFields{"component": "test"})
}

func TestRoleExports(t *testing.T) {
	if !RoleBoth.Publishes() || !RoleBoth.Subscribes() {
		t.Fatal("expected RoleBoth to cover both halves")
	}
	if RolePublisher.Subscribes() {
		t.Fatal("publisher role must not subscribe")
	}
}
