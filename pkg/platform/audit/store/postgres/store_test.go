package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/sentinel"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *[]byte:
			if r.values[i] != nil {
				*p = r.values[i].([]byte)
			}
		}
	}
	return nil
}

func row(details, changes []byte) fakeRow {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	return fakeRow{values: []any{
		"evt-1", ts, audit.ActionUserBlock, "op-1", "admin",
		audit.ResourceUser, "user-9", details, changes, "10.0.0.1", "success",
	}}
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_audit_events.sql", files[0])
}

func TestScanEvent(t *testing.T) {
	t.Run("decodes json columns and normalizes to utc", func(t *testing.T) {
		e, err := scanEvent(row([]byte(`{"reason":"fraud"}`), []byte(`{"before":"active","after":"blocked"}`)))
		require.NoError(t, err)

		assert.Equal(t, "evt-1", e.ID)
		assert.Equal(t, time.UTC, e.Timestamp.Location())
		assert.Equal(t, audit.StatusSuccess, e.Status)
		assert.Equal(t, "fraud", e.Details["reason"])
		assert.Equal(t, "blocked", e.Changes["after"])
	})

	t.Run("absent changes stay nil", func(t *testing.T) {
		e, err := scanEvent(row([]byte(`{}`), nil))
		require.NoError(t, err)
		assert.Nil(t, e.Changes)
		assert.NotNil(t, e.Details)
	})

	t.Run("undecodable details are corrupt", func(t *testing.T) {
		_, err := scanEvent(row([]byte(`{`), nil))
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrCorrupt)
	})

	t.Run("scan failure is propagated", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := scanEvent(fakeRow{err: boom})
		assert.ErrorIs(t, err, boom)
	})
}
