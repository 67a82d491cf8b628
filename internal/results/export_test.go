package results

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"quizroom/internal/domain"
)

func intPtr(v int) *int { return &v }

func sampleResults() domain.SessionResults {
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	return domain.SessionResults{
		Quiz: domain.Quiz{
			Title: "Colours",
			Questions: []domain.Question{
				{ID: "q1", Type: domain.TypeSingleChoice, Prompt: "Sky?", Options: []string{"red", "blue"}, CorrectAnswer: intPtr(1), TimeLimit: 20},
				{ID: "q2", Type: domain.TypeRanking, Prompt: "Order", Options: []string{"a", "b", "c"}, CorrectOrder: []int{2, 0, 1}, TimeLimit: 20},
				{ID: "q3", Type: domain.TypePhraseCloud, Prompt: "Mood", TimeLimit: 20},
			},
		},
		Session: domain.SessionRecord{
			RoomCode: "AB12CD",
			Participants: []domain.Participant{
				{ID: "p1", Name: "Ana", Connected: true},
				{ID: "p2", Name: "Ben", Connected: false},
			},
			Answers: []domain.Answer{
				{ParticipantID: "p1", ParticipantName: "Ana", QuestionID: "q1", Value: domain.IndexValue(1), Timestamp: at, TimeRemaining: intPtr(15)},
				{ParticipantID: "p2", ParticipantName: "Ben", QuestionID: "q1", Value: domain.IndexValue(0), Timestamp: at, TimeRemaining: intPtr(19)},
				{ParticipantID: "p2", ParticipantName: "Ben", QuestionID: "q2", Value: domain.IndicesValue(2, 0, 1), Timestamp: at, TimeRemaining: intPtr(20)},
				{ParticipantID: "p1", ParticipantName: "Ana", QuestionID: "q3", Value: domain.TextValue("sunny"), Timestamp: at},
			},
			CompletedAt: at,
		},
	}
}

func TestJSONRoundTripKeepsLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults()))
	assert.Contains(t, buf.String(), "\n  \"quiz\": {")
	assert.Contains(t, buf.String(), `"completedAt": "2024-11-22T10:00:00Z"`)

	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", back.Session.RoomCode)
	require.Len(t, back.Session.Answers, 4)
	assert.Equal(t, domain.IndicesValue(2, 0, 1), back.Session.Answers[2].Value)
	assert.Equal(t, domain.TextValue("sunny"), back.Session.Answers[3].Value)
}

func TestFinalLeaderboardCountsEveryQuestion(t *testing.T) {
	lb := FinalLeaderboard(sampleResults())
	require.Len(t, lb, 2)
	assert.Equal(t, "Ben", lb[0].Name)
	assert.Equal(t, 1000, lb[0].Score)
	assert.Equal(t, "Ana", lb[1].Name)
	assert.Equal(t, 750, lb[1].Score)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleResults()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Leaderboard", "Answers"}, f.GetSheetList())

	rows, err := f.GetRows("Leaderboard")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Rank", "Name", "Score", "Connected"}, rows[0])
	assert.Equal(t, []string{"1", "Ben", "1000", "FALSE"}, rows[1])
	assert.Equal(t, []string{"2", "Ana", "750", "TRUE"}, rows[2])

	rows, err = f.GetRows("Answers")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "blue", rows[1][3])
	assert.Equal(t, "c > a > b", rows[3][3])
	assert.Equal(t, "sunny", rows[4][3])
	assert.Equal(t, "", rows[4][6])
}

func TestDisplayAnswer(t *testing.T) {
	q := domain.Question{Type: domain.TypeMultiSelect, Options: []string{"x", "y"}}
	assert.Equal(t, "x, y", DisplayAnswer(q, domain.IndicesValue(0, 1)))
	assert.Equal(t, "#5", DisplayAnswer(q, domain.IndexValue(5)))
	assert.Equal(t, "7.5", DisplayAnswer(domain.Question{Type: domain.TypeScale}, domain.NumberValue(7.5)))
}

func TestFileSinkWritesBothFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := &FileSink{Dir: dir, XLSX: true}
	require.NoError(t, sink.SaveResults(context.Background(), sampleResults()))

	base := filepath.Join(dir, "quiz-results-AB12CD-1732269600")
	f, err := os.Open(base + ".json")
	require.NoError(t, err)
	defer f.Close()
	res, err := ReadJSON(f)
	require.NoError(t, err)
	assert.Equal(t, "Colours", res.Quiz.Title)

	_, err = os.Stat(base + ".xlsx")
	assert.NoError(t, err)
}

func TestReadJSONRestoresScaleNumbers(t *testing.T) {
	res := sampleResults()
	res.Quiz.Questions = append(res.Quiz.Questions, domain.Question{ID: "q4", Type: domain.TypeScale, Prompt: "Rate"})
	res.Session.Answers = append(res.Session.Answers, domain.Answer{ParticipantID: "p1", QuestionID: "q4", Value: domain.NumberValue(7)})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, res))
	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, domain.NumberValue(7), back.Session.Answers[4].Value)
}
