package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamdash/internal/model"
)

func TestSQLiteRecorder_RoundTripAndPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	r, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer r.Close()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	obs := []model.Observation{
		model.NewObservation("AAPL", old, 150.10, 100, true),
		model.NewObservation("AAPL", recent, 151.20, 200, false),
		model.NewObservation("SPY", recent, 400.00, 300, false),
	}
	require.NoError(t, r.RecordObservations(obs))
	require.NoError(t, r.RecordCycle(&CycleEvent{
		Trigger:    "interval",
		StartedAt:  recent,
		FinishedAt: recent,
		Succeeded:  2,
		Appended:   2,
	}))

	pruned, err := r.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned, "only the 48h-old row should be pruned")

	var remaining int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&remaining))
	assert.Equal(t, 2, remaining)
}
