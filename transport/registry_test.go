package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
)

func mockBuilder(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error) {
	var tr Transport
	if role.Publishes() {
		tr.Publisher = &mockPublisher{}
	}
	if role.Subscribes() {
		tr.Subscriber = &mockSubscriber{}
	}
	return tr, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test", mockBuilder)

	assert.True(t, reg.Has("test"))
	assert.False(t, reg.Has("other"))
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("kafka", mockBuilder, KafkaCapabilities)

	assert.True(t, reg.Has("kafka"))
	assert.Equal(t, KafkaCapabilities, reg.GetCapabilities("kafka"))
}

func TestRegistry_GetCapabilitiesUnknown(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, Capabilities{Name: "missing"}, reg.GetCapabilities("missing"))
}

func TestRegistry_BuildRespectsRole(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test", mockBuilder)
	cfg := &mockConfig{pubSubSystem: "test"}

	tests := []struct {
		role    Role
		wantPub bool
		wantSub bool
	}{
		{RolePublisher, true, false},
		{RoleSubscriber, false, true},
		{RoleBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			tr, err := reg.Build(context.Background(), cfg, tt.role, watermill.NopLogger{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPub, tr.Publisher != nil)
			assert.Equal(t, tt.wantSub, tr.Subscriber != nil)
		})
	}
}

func TestRegistry_BuildUnknownTransport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("kafka", mockBuilder)

	_, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "sqs"}, RolePublisher, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "sqs"`)
	assert.Contains(t, err.Error(), "kafka")
}

func TestRegistry_BuildNilConfig(t *testing.T) {
	_, err := NewRegistry().Build(context.Background(), nil, RolePublisher, nil)
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
}

func TestRegistry_BuildDefaultsNilLogger(t *testing.T) {
	reg := NewRegistry()
	var got watermill.LoggerAdapter
	reg.Register("test", func(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error) {
		got = logger
		return Transport{}, nil
	})

	_, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "test"}, RolePublisher, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRegistry_NamesAreCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("Kafka", mockBuilder, KafkaCapabilities)

	assert.True(t, reg.Has(" KAFKA "))
	assert.Equal(t, []string{"kafka"}, reg.Names())
	assert.Equal(t, KafkaCapabilities, reg.GetCapabilities("kafka"))

	tr, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "KAFKA"}, RolePublisher, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
}

func TestRegistry_RegisterWithoutCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.Register("custom", mockBuilder)
	assert.Equal(t, Capabilities{Name: "custom"}, reg.GetCapabilities("custom"))
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("rabbitmq", mockBuilder)
	reg.Register("channel", mockBuilder)
	reg.Register("kafka", mockBuilder)

	assert.Equal(t, []string{"channel", "kafka", "rabbitmq"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register("transport", mockBuilder)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
		}()
	}
	wg.Wait()

	assert.True(t, reg.Has("transport"))
}

func TestBuildWithDefaultRegistry(t *testing.T) {
	_, err := Build(context.Background(), &mockConfig{pubSubSystem: "nonexistent"}, RolePublisher, nil)
	assert.Error(t, err)
}

func TestPackageLevelRegisterWithCapabilities(t *testing.T) {
	caps := Capabilities{Name: "test-pkg-caps-transport", SupportsHeaders: true}
	RegisterWithCapabilities("test-pkg-caps-transport", mockBuilder, caps)

	assert.True(t, DefaultRegistry.Has("test-pkg-caps-transport"))
	assert.Equal(t, caps, GetCapabilities("test-pkg-caps-transport"))

	Register("test-pkg-transport", mockBuilder)
	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
}
