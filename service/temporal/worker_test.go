package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   WorkerConfig
		contains []string
	}{
		{
			name:     "missing scanner and queue",
			config:   WorkerConfig{},
			contains: []string{"scanner is required", "task queue is required"},
		},
		{
			name:     "negative concurrency",
			config:   WorkerConfig{Scanner: new(MockScanner), TaskQueue: "q", MaxConcurrentScans: -1},
			contains: []string{"must not be negative"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWorker(tt.config)
			require.Error(t, err)
			assert.Nil(t, w)
			for _, s := range tt.contains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}
