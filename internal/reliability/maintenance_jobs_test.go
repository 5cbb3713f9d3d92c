package reliability

import (
	"os"
	"testing"

	"github.com/aristath/frontier/internal/database"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	universe, cleanupU := testutil.NewTestDB(t, "universe")
	defer cleanupU()
	portfolio, cleanupP := testutil.NewTestDB(t, "portfolio")
	defer cleanupP()

	job := NewWeeklyMaintenanceJob([]*database.DB{universe, nil, portfolio}, zerolog.Nop())
	assert.Equal(t, "weekly_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestWeeklyMaintenanceJob_ClosedDatabaseFails(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "tuning")
	defer cleanup()
	require.NoError(t, db.Close())

	job := NewWeeklyMaintenanceJob([]*database.DB{db}, zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestBackupJob_Run(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "universe")
	defer cleanup()

	dir := t.TempDir()
	job := NewBackupJob(NewBackupService([]*database.DB{db}, dir, zerolog.Nop()), 30, zerolog.Nop())
	assert.Equal(t, "backup_databases", job.Name())
	require.NoError(t, job.Run())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
