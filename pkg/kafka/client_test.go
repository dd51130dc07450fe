package kafka

import (
	"testing"

	"chatbot-go/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092 "}))
	assert.Nil(t, brokers(config.KafkaConfig{}))
}
