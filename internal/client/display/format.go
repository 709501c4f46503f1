package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"scoreboard/internal/dashboard"
	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
)

// PrettyPrintJSON prints formatted JSON
func PrettyPrintJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%sError formatting JSON: %s%s\n", Red, err.Error(), Reset)
		return
	}
	fmt.Fprintln(w, string(data))
}

// MatchLine renders one scoreboard row:
// Alpha 2 : 1 Beta  [Playing 00:12:04]  01.06.2024
func MatchLine(v lifecycle.View) string {
	m := v.Match
	line := fmt.Sprintf("%s %d : %d %s  %s[%s %s]%s  %s",
		m.Team1Name, m.Score1, m.Score2, m.Team2Name,
		StatusColor(string(v.DisplayStatus)), v.StatusText, v.Clock, Reset,
		v.DisplayDate)
	if m.ChampionshipTitle != "" {
		line += "  (" + m.ChampionshipTitle + ")"
	}
	return line
}

// PrintPage prints a dashboard page with 1-based row numbers the console
// accepts in place of match ids
func PrintPage(w io.Writer, page dashboard.Page) {
	if len(page.Matches) == 0 {
		fmt.Fprintf(w, "%sNo matches%s\n", Yellow, Reset)
		return
	}
	for i, v := range page.Matches {
		fmt.Fprintf(w, "%s%3d%s  %s  %s%s%s\n", Cyan, i+1, Reset, MatchLine(v), White, v.ID, Reset)
	}
	footer := fmt.Sprintf("%d of %d", len(page.Matches), page.Total)
	if page.HideEnded {
		footer += ", ended hidden"
	}
	if page.HasMore {
		footer += ", 'more' for next page"
	}
	fmt.Fprintf(w, "%s(%s)%s\n", Yellow, footer, Reset)
}

// GoalLabel describes a goal for lists and removal prompts
func GoalLabel(g model.Goal, players map[string]model.Player) string {
	var who string
	switch {
	case g.IsOwnGoal:
		who = "own goal"
	case g.PlayerID != nil:
		if p, ok := players[*g.PlayerID]; ok {
			who = fmt.Sprintf("#%d %s", p.Number, p.FullName())
		} else if g.PlayerNumber != nil {
			who = fmt.Sprintf("#%d", *g.PlayerNumber)
		} else {
			who = "unknown player"
		}
	default:
		who = "unattributed"
	}
	half := "-"
	if g.Half > 0 {
		half = fmt.Sprintf("H%d", g.Half)
	}
	return fmt.Sprintf("%s %s  %s", half, g.MatchTime, who)
}

// PrintGoals prints goals numbered from 1
func PrintGoals(w io.Writer, goals []model.Goal, players map[string]model.Player) {
	if len(goals) == 0 {
		fmt.Fprintf(w, "%sNo goals recorded%s\n", Yellow, Reset)
		return
	}
	for i, g := range goals {
		fmt.Fprintf(w, "%s%3d%s  %s\n", Cyan, i+1, Reset, GoalLabel(g, players))
	}
}

// PrintPlayers prints a team roster as a table
func PrintPlayers(w io.Writer, players []model.Player) {
	if len(players) == 0 {
		fmt.Fprintf(w, "%sNo players%s\n", Yellow, Reset)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tName\tRole\tStatus\tID")
	for _, p := range players {
		role, status := "field", "active"
		if p.IsGoalkeeper {
			role = "goalkeeper"
		}
		if p.IsAbsent {
			status = "absent"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.Number, p.FullName(), role, status, p.ID)
	}
	tw.Flush()
}

// PrintTeams prints teams, marking the default one
func PrintTeams(w io.Writer, teams []model.Team, defaultID string) {
	if len(teams) == 0 {
		fmt.Fprintf(w, "%sNo teams%s\n", Yellow, Reset)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tName\tColor\tID")
	for _, t := range teams {
		mark := ""
		if t.ID == defaultID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, t.Name, t.Color, t.ID)
	}
	tw.Flush()
}

// Countdown renders the halftime countdown line
func Countdown(remaining time.Duration) string {
	return fmt.Sprintf("%sHalftime %s%s", Yellow, model.FormatHalfClock(remaining), Reset)
}

// Success prints a green confirmation line
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s%s%s\n", Green, fmt.Sprintf(format, args...), Reset)
}

// Error prints a red error line
func Error(w io.Writer, err error) {
	msg := strings.TrimSpace(err.Error())
	fmt.Fprintf(w, "%sError: %s%s\n", Red, msg, Reset)
}
