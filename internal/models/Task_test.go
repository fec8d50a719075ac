package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskIsRunning(t *testing.T) {
	running := TaskStatusRunning
	okStatus := "OK"
	endTime := int64(1000)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{
			name: "no end time means running",
			task: Task{StartTime: 900},
			want: true,
		},
		{
			name: "running status wins over end time",
			task: Task{StartTime: 900, EndTime: &endTime, Status: &running},
			want: true,
		},
		{
			name: "end time with terminal status",
			task: Task{StartTime: 900, EndTime: &endTime, Status: &okStatus},
			want: false,
		},
		{
			name: "end time without status",
			task: Task{StartTime: 900, EndTime: &endTime},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.IsRunning())
		})
	}
}

func TestTaskDuration(t *testing.T) {
	end := int64(1000)
	finished := Task{StartTime: 900, EndTime: &end}
	assert.Equal(t, int64(100), finished.Duration())

	// Clock anomalies surface as negative values, never clamped.
	early := int64(800)
	anomalous := Task{StartTime: 900, EndTime: &early}
	assert.Equal(t, int64(-100), anomalous.Duration())

	same := int64(900)
	instant := Task{StartTime: 900, EndTime: &same}
	assert.Equal(t, int64(0), instant.Duration())
}
