package renderlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tileplot/internal/plot"
	"github.com/banshee-data/tileplot/internal/plot/canvas"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "render.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRun(t *testing.T) {
	s := openTestStore(t)

	key := canvas.TileKey{SMVersion: 2, ConfigID: 1, ZoomLevel: 3, Row: 4, Col: 5, ItemID: -1}
	s.RecordTile(plot.TileRecord{
		Key: key, Seq: 17,
		PaintMicros: 1200, EncodeMicros: 300,
		TileBytes: 197120, HovermapBytes: 262144,
	})
	s.RecordTile(plot.TileRecord{
		Key: canvas.TileKey{Row: 4, Col: 6, ItemID: -1}, Seq: 18,
		PaintMicros: 900, EncodeMicros: 280,
		TileBytes: 197120, HovermapBytes: 262144,
	})

	events, err := s.ListRun(s.RunID())
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	require.Equal(t, 17, ev.Seq)
	require.Equal(t, 2, ev.SMVersion)
	require.Equal(t, 1, ev.ConfigID)
	require.Equal(t, 3, ev.ZoomLevel)
	require.Equal(t, 4, ev.Row)
	require.Equal(t, 5, ev.Col)
	require.Equal(t, -1, ev.ItemID)
	require.EqualValues(t, 1200, ev.PaintMicros)
	require.NotEmpty(t, ev.EventID)
	require.Equal(t, s.RunID(), ev.RunID)
}

func TestListUnknownRunIsEmpty(t *testing.T) {
	s := openTestStore(t)
	events, err := s.ListRun("no-such-run")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestRunsOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.db")

	s1, err := Open(path)
	require.NoError(t, err)
	s1.RecordTile(plot.TileRecord{Seq: 1})
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	s2.RecordTile(plot.TileRecord{Seq: 2})
	defer s2.Close()

	runs, err := s2.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, s2.RunID(), runs[0])
	require.Equal(t, s1.RunID(), runs[1])
}
