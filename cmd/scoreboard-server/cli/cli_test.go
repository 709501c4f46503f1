package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"scoreboard/internal/server/storage"
	"scoreboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func initDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoreboard.db")
	require.NoError(t, Run([]string{"init", "--path", path}))
	return path
}

func TestUserCommands(t *testing.T) {
	buf := capture(t)
	path := initDB(t)

	require.NoError(t, Run([]string{"user", "add", "--path", path,
		"--username", "Referee", "--email", "Ref@Example.com", "--password", "whistle123"}))
	assert.Contains(t, buf.String(), "Username: referee")

	err := Run([]string{"user", "add", "--path", path, "--username", "x", "--email", "x@example.com", "--password", "short"})
	assert.ErrorContains(t, err, "at least 8 characters")

	err = Run([]string{"user", "add", "--path", path, "--username", "referee", "--email", "other@example.com", "--password", "whistle123"})
	assert.ErrorIs(t, err, storage.ErrUserExists)

	buf.Reset()
	require.NoError(t, Run([]string{"user", "list", "--path", path, "--json"}))
	var users []struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "ref@example.com", users[0].Email)

	require.NoError(t, Run([]string{"user", "passwd", "--path", path, "--username", "referee", "--password", "newwhistle1"}))
	assert.ErrorContains(t, Run([]string{"user", "passwd", "--path", path, "--password", "newwhistle1"}), "either --username or --id")

	require.NoError(t, Run([]string{"user", "delete", "--path", path, "--id", users[0].UserID}))
	buf.Reset()
	require.NoError(t, Run([]string{"user", "list", "--path", path}))
	assert.Contains(t, buf.String(), "No users found")
}

func TestUnknownSubcommands(t *testing.T) {
	assert.Error(t, Run(nil))
	assert.ErrorContains(t, Run([]string{"vacuum"}), "unknown subcommand")
	assert.ErrorContains(t, Run([]string{"user", "rename"}), "unknown user subcommand")
	assert.ErrorContains(t, Run([]string{"query"}), "database path required")
}

func seedNodes(t *testing.T, path string, nodes ...store.Node) {
	t.Helper()
	st, err := storage.NewStore(path, false, nil)
	require.NoError(t, err)
	require.NoError(t, st.SaveNodes(nodes))
	require.NoError(t, st.Close())
}

func TestQueryAndExport(t *testing.T) {
	buf := capture(t)
	path := initDB(t)

	seedNodes(t, path,
		store.Node{Path: "matches/m1", Version: 1, Value: json.RawMessage(
			`{"team1Name":"Alpha","team2Name":"Beta","score1":2,"score2":1,"status":"ended","currentHalf":2,"matchDate":"2024-06-01","createdAt":1717200000000}`)},
		store.Node{Path: "matches/m2", Version: 2, Value: json.RawMessage(
			`{"team1Name":"Gamma","team2Name":"Delta","score1":0,"score2":0,"status":"waiting","currentHalf":0,"createdAt":1717300000000}`)},
		store.Node{Path: "goals/g1", Version: 3, Value: json.RawMessage(
			`{"matchId":"m1","half":1,"matchTime":"12:04","playerNumber":9,"isOwnGoal":false,"createdAt":1717200100000}`)},
	)

	require.NoError(t, Run([]string{"query", "--path", path, "--collection", "matches"}))
	assert.Contains(t, buf.String(), "Found 2 node(s)")

	xlsx := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, Run([]string{"export", "--path", path, "--out", xlsx, "--timezone", "UTC"}))

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetMatches, sheetGoals, sheetNodes}, f.GetSheetList())

	rows, err := f.GetRows(sheetMatches)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	// upcoming matches come before played ones
	assert.Equal(t, "m2", rows[1][0])
	assert.Equal(t, "m1", rows[2][0])
	assert.Equal(t, "01.06.2024", rows[2][6])

	rows, err = f.GetRows(sheetGoals)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"m1", "g1", "1", "12:04", "9", "no"}, rows[1][:6])

	rows, err = f.GetRows(sheetNodes)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestBuildWorkbookRejectsBadRecords(t *testing.T) {
	_, err := buildWorkbook([]storage.NodeRecord{
		{Collection: "matches", Key: "m1", Value: "{", Version: 1, UpdatedAt: time.Now()},
	}, time.UTC)
	assert.ErrorContains(t, err, "match m1")
}
