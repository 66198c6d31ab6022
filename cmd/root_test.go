package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"info", "text", false},
		{"DEBUG", "json", false},
		{"warn", "JSON", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := newLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "convert", "report", "migrate"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestPrintJobResults(t *testing.T) {
	ok := models.Snapshot{Results: []models.BookResult{{Title: "alpha", EPUBPath: "a.epub", DevicePath: "a.mobi"}}}
	assert.NoError(t, printJobResults(ok))

	failed := models.Snapshot{Results: []models.BookResult{
		{Title: "alpha", DevicePath: "a.mobi"},
		{Title: "beta", Error: "conversion failed"},
	}}
	assert.EqualError(t, printJobResults(failed), "1 book(s) failed")
}
