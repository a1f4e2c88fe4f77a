package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fossabot/gfw-data-api/internal/config"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

func TestSettingsFromConfig_RoundCapCoversBuilder(t *testing.T) {
	cfg := &config.Config{SchedulerMaxRound: 64, ChunkSize: 100, PollInterval: time.Second, PollCyclesPerRun: 10}
	s := SettingsFromConfig(cfg)
	assert.Equal(t, jobs.MaxDepth(100, jobs.MaxPartitions)+pipeline.RoundMargin, s.MaxRounds)
	assert.Equal(t, time.Second, s.PollInterval)
	assert.Equal(t, 10, s.PollCyclesPerRun)

	cfg.SchedulerMaxRound = 1000
	assert.Equal(t, 1000, SettingsFromConfig(cfg).MaxRounds)
}

func TestPipelineWorkflowID(t *testing.T) {
	assert.Equal(t, "asset-pipeline-a1", PipelineWorkflowID("a1"))
}
