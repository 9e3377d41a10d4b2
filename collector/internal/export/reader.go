// Package export reads per-game box-score exports (CSV or XLSX) into game
// log entries.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/nhl"
)

// ErrNoRows is returned when an export holds no game rows.
var ErrNoRows = errors.New("export: no game rows")

// dateLayouts are tried in order; excelize renders date cells as mm-dd-yy.
var dateLayouts = []string{"2006-01-02", "01-02-06", "1/2/2006", "1/2/06"}

// Read parses the export at path. The sheet must carry a header row with
// Date, Opp, G and A columns; an away marker is either an "@" prefix on
// Opp or an "@" in a blank-headed or "H/A" column.
func Read(path string) ([]nhl.GameLogEntry, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	case ".csv", ".txt":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("export: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return Parse(rows)
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

type columns struct {
	date, opp, goals, assists, away int
}

func findColumns(header []string) (columns, error) {
	c := columns{date: -1, opp: -1, goals: -1, assists: -1, away: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			c.date = i
		case "opp", "opponent":
			c.opp = i
		case "g", "goals":
			c.goals = i
		case "a", "assists":
			c.assists = i
		case "", "h/a", "unnamed: 5":
			if c.away < 0 {
				c.away = i
			}
		}
	}
	if c.date < 0 || c.opp < 0 || c.goals < 0 || c.assists < 0 {
		return c, fmt.Errorf("export: header %q needs Date, Opp, G and A", header)
	}
	return c, nil
}

// Parse converts header + data rows. Rows whose Date cell is not a date
// (repeated headers, totals) are skipped.
func Parse(rows [][]string) ([]nhl.GameLogEntry, error) {
	if len(rows) < 2 {
		return nil, ErrNoRows
	}
	cols, err := findColumns(rows[0])
	if err != nil {
		return nil, err
	}
	var out []nhl.GameLogEntry
	for i, row := range rows[1:] {
		line := i + 2
		date, ok := parseDate(cell(row, cols.date))
		if !ok {
			continue
		}
		opp := strings.TrimSpace(cell(row, cols.opp))
		flag := "H"
		switch {
		case strings.HasPrefix(opp, "@"):
			opp, flag = strings.TrimSpace(opp[1:]), "R"
		case strings.HasPrefix(strings.ToLower(opp), "vs "):
			opp = strings.TrimSpace(opp[3:])
		}
		if cols.away >= 0 && strings.TrimSpace(cell(row, cols.away)) == "@" {
			flag = "R"
		}
		if opp == "" {
			return nil, fmt.Errorf("export: row %d: empty opponent", line)
		}
		goals, err := count(cell(row, cols.goals))
		if err != nil {
			return nil, fmt.Errorf("export: row %d goals: %w", line, err)
		}
		assists, err := count(cell(row, cols.assists))
		if err != nil {
			return nil, fmt.Errorf("export: row %d assists: %w", line, err)
		}
		out = append(out, nhl.GameLogEntry{
			SeasonID:       SeasonID(date),
			GameDate:       date.Format("2006-01-02"),
			OpponentAbbrev: strings.ToUpper(opp),
			HomeRoadFlag:   flag,
			Goals:          goals,
			Assists:        assists,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// SeasonID names the season a date falls in: games from September onward
// belong to the season starting that year. Matches projector's gamelog.SeasonID.
func SeasonID(d time.Time) string {
	start := d.Year()
	if d.Month() < time.September {
		start--
	}
	return fmt.Sprintf("%d%d", start, start+1)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func count(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
