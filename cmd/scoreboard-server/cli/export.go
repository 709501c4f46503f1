package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"scoreboard/internal/dashboard"
	"scoreboard/internal/model"
	"scoreboard/internal/server/storage"

	"github.com/xuri/excelize/v2"
)

const (
	sheetMatches = "Matches"
	sheetGoals   = "Goals"
	sheetNodes   = "Nodes"
)

var (
	matchHeader = []any{"ID", "Team 1", "Team 2", "Score 1", "Score 2", "Status", "Date", "Championship", "Created By"}
	goalHeader  = []any{"Match ID", "Goal ID", "Half", "Time", "Player #", "Own Goal", "Team ID"}
	nodeHeader  = []any{"Collection", "Key", "Version", "Updated", "Value"}
)

func runExport(args []string) error {
	fs, path := newFlagSet("export")
	output := fs.String("out", "scoreboard.xlsx", "Output XLSX file")
	timezone := fs.String("timezone", "", "IANA zone for dates (local zone if empty)")

	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	loc := time.Local
	if *timezone != "" {
		if loc, err = time.LoadLocation(*timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", *timezone, err)
		}
	}

	nodes, err := st.QueryNodes("", "")
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	f, err := buildWorkbook(nodes, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(*output); err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}
	fmt.Fprintf(out, "Exported %d node(s) to %s\n", len(nodes), *output)
	return nil
}

// buildWorkbook lays matches out in dashboard order with their goals, plus
// every raw node on a last sheet
func buildWorkbook(nodes []storage.NodeRecord, loc *time.Location) (*excelize.File, error) {
	var (
		matches []model.Match
		goals   []model.Goal
	)
	for _, n := range nodes {
		switch n.Collection {
		case model.CollectionMatches:
			var m model.Match
			if err := json.Unmarshal([]byte(n.Value), &m); err != nil {
				return nil, fmt.Errorf("match %s: %w", n.Key, err)
			}
			m.ID = n.Key
			matches = append(matches, m)
		case model.CollectionGoals:
			var g model.Goal
			if err := json.Unmarshal([]byte(n.Value), &g); err != nil {
				return nil, fmt.Errorf("goal %s: %w", n.Key, err)
			}
			g.ID = n.Key
			goals = append(goals, g)
		}
	}
	dashboard.Sort(matches, loc)
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].MatchID != goals[j].MatchID {
			return goals[i].MatchID < goals[j].MatchID
		}
		return goals[i].CreatedAt < goals[j].CreatedAt
	})

	f := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		f.Close()
		return nil, err
	}

	rows := make([][]any, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []any{
			m.ID, m.Team1Name, m.Team2Name, m.Score1, m.Score2,
			m.Status.Text(), model.DisplayDate(m, loc), m.ChampionshipTitle, m.CreatedByEmail,
		})
	}
	if err := writeSheet(f, sheetMatches, matchHeader, rows); err != nil {
		return fail(err)
	}

	rows = rows[:0]
	for _, g := range goals {
		number, team, own := "", "", "no"
		if g.PlayerNumber != nil {
			number = fmt.Sprint(*g.PlayerNumber)
		}
		if g.TeamID != nil {
			team = *g.TeamID
		}
		if g.IsOwnGoal {
			own = "yes"
		}
		rows = append(rows, []any{g.MatchID, g.ID, g.Half, g.MatchTime, number, own, team})
	}
	if err := writeSheet(f, sheetGoals, goalHeader, rows); err != nil {
		return fail(err)
	}

	rows = rows[:0]
	for _, n := range nodes {
		rows = append(rows, []any{n.Collection, n.Key, n.Version, n.UpdatedAt.In(loc).Format("2006-01-02 15:04:05"), n.Value})
	}
	if err := writeSheet(f, sheetNodes, nodeHeader, rows); err != nil {
		return fail(err)
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fail(err)
	}
	if idx, err := f.GetSheetIndex(sheetMatches); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}
