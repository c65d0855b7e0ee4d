package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSink_Validation(t *testing.T) {
	_, err := NewSink(Config{Topic: "audit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers")

	_, err = NewSink(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestNewSink_DefersConnection(t *testing.T) {
	// franz-go dials lazily, so construction succeeds without a broker.
	sink, err := NewSink(Config{Brokers: []string{"127.0.0.1:1"}, Topic: "audit"})
	require.NoError(t, err)
	sink.client.Close()
}
