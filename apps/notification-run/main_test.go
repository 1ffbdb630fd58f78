package main

import (
	"testing"
	"time"

	"github.com/smallbiznis/catering/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--job", "a", "--job=b", "--dispatch-outbox", "--timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, opts.jobs)
	assert.True(t, opts.dispatchOutbox)
	assert.Equal(t, 30*time.Second, opts.timeout)

	_, err = parseFlags([]string{"--unknown"})
	assert.Error(t, err)
}

func TestJobNamesDefaultsToEnabledJobs(t *testing.T) {
	holder := config.NewStaticNotificationConfigHolder(config.NotificationConfig{
		Jobs: []config.JobDefinition{
			{Name: "first", EventType: "a.b"},
			{Name: "off", EventType: "c.d", Disabled: true},
		},
	})

	assert.Equal(t, []string{"first"}, jobNames(nil, holder))
	assert.Equal(t, []string{"off"}, jobNames([]string{"off"}, holder))
}
