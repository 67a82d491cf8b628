// Package results writes finished sessions to disk as indented JSON and, optionally,
// an XLSX workbook with "Leaderboard" and "Answers" sheets.
package results

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"quizroom/internal/domain"
	"quizroom/internal/scoring"
)

const (
	leaderboardSheet = "Leaderboard"
	answersSheet     = "Answers"
)

// FileName is the base name used for an export, e.g. quiz-results-AB12CD-1700000000.
func FileName(res domain.SessionResults) string {
	return fmt.Sprintf("quiz-results-%s-%d", res.Session.RoomCode, res.Session.CompletedAt.Unix())
}

// WriteJSON encodes res as indented JSON.
func WriteJSON(w io.Writer, res domain.SessionResults) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// ReadJSON decodes a results file written by WriteJSON.
func ReadJSON(r io.Reader) (domain.SessionResults, error) {
	var res domain.SessionResults
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return domain.SessionResults{}, fmt.Errorf("decode results: %w", err)
	}
	types := make(map[string]domain.QuestionType, len(res.Quiz.Questions))
	for _, q := range res.Quiz.Questions {
		types[q.ID] = q.Type
	}
	for i, a := range res.Session.Answers {
		// Whole-number scale answers decode as indices.
		if types[a.QuestionID].ExpectedKind() == domain.KindNumber && a.Value.Kind == domain.KindIndex {
			res.Session.Answers[i].Value = domain.NumberValue(float64(a.Value.Index))
		}
	}
	return res, nil
}

// FinalLeaderboard ranks every participant over all questions of the session.
func FinalLeaderboard(res domain.SessionResults) []domain.LeaderboardEntry {
	all := make(map[string]bool, len(res.Quiz.Questions))
	for _, q := range res.Quiz.Questions {
		all[q.ID] = true
	}
	return scoring.Leaderboard(res.Quiz, res.Session.Participants, res.Session.Answers, all, "")
}

// WriteXLSX writes res as a workbook.
func WriteXLSX(w io.Writer, res domain.SessionResults) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(leaderboardSheet)
	if err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(answersSheet); err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	// Drop the default sheet so the workbook holds only ours.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}

	rows := [][]any{{"Rank", "Name", "Score", "Connected"}}
	connected := make(map[string]bool, len(res.Session.Participants))
	for _, p := range res.Session.Participants {
		connected[p.ID] = p.Connected
	}
	for i, e := range FinalLeaderboard(res) {
		rows = append(rows, []any{i + 1, e.Name, e.Score, connected[e.ParticipantID]})
	}
	if err := writeRows(f, leaderboardSheet, rows); err != nil {
		return err
	}

	questions := make(map[string]domain.Question, len(res.Quiz.Questions))
	for _, q := range res.Quiz.Questions {
		questions[q.ID] = q
	}
	rows = [][]any{{"Participant", "Question", "Type", "Answer", "Correct", "Points", "Time Left", "Submitted At"}}
	for _, a := range res.Session.Answers {
		q := questions[a.QuestionID]
		timeLeft := ""
		if a.TimeRemaining != nil {
			timeLeft = strconv.Itoa(*a.TimeRemaining)
		}
		rows = append(rows, []any{
			a.ParticipantName,
			q.Prompt,
			string(q.Type),
			DisplayAnswer(q, a.Value),
			scoring.Correct(q, a.Value),
			scoring.ScoreAnswer(q, a),
			timeLeft,
			a.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	if err := writeRows(f, answersSheet, rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
		}
	}
	return nil
}

// DisplayAnswer renders an answer with option texts where the question has them.
func DisplayAnswer(q domain.Question, v domain.AnswerValue) string {
	option := func(i int) string {
		if i >= 0 && i < len(q.Options) {
			return q.Options[i]
		}
		return "#" + strconv.Itoa(i)
	}
	switch v.Kind {
	case domain.KindIndex:
		return option(v.Index)
	case domain.KindIndices:
		parts := make([]string, len(v.Indices))
		for i, idx := range v.Indices {
			parts[i] = option(idx)
		}
		sep := ", "
		if q.Type == domain.TypeRanking {
			sep = " > "
		}
		return strings.Join(parts, sep)
	case domain.KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case domain.KindText:
		return v.Text
	}
	return ""
}
