package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

const (
	summarySheet   = "Summary"
	breakdownSheet = "Breakdown"
	answersSheet   = "Answers"
)

type reportService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	sessions SessionService
}

func NewReportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, sessions SessionService) ReportService {
	return &reportService{
		repo:     repo,
		db:       db,
		logger:   logger,
		sessions: sessions,
	}
}

// ExportSessionReport writes an xlsx workbook for a closed session and returns its file name.
// Owners and authors may export.
func (s *reportService) ExportSessionReport(ctx context.Context, sessionID uint, userID string, w io.Writer) (string, error) {
	ctx, span := startSpan(ctx, "session.export_report", sessionID)
	defer span.End()

	session, err := s.repo.Session().GetByID(ctx, s.db, sessionID)
	if err != nil {
		return "", sessionLookupError(err)
	}
	if session.UserID != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil || !user.CanAuthor() {
			return "", ErrSessionNotFound
		}
	}
	if !session.Status.IsClosed() {
		return "", ErrSessionNotClosed
	}

	// the owner check is done above, so read the summary as the owner
	summary, err := s.sessions.GetSummary(ctx, sessionID, session.UserID)
	if err != nil {
		return "", err
	}

	answers, err := s.repo.Answer().ListBySession(ctx, s.db, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load answers: %w", err)
	}
	questions, err := s.repo.Question().GetByIDs(ctx, s.db, answeredQuestionIDs(answers))
	if err != nil {
		return "", fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeReport(f, summary, answers, byID); err != nil {
		return "", fmt.Errorf("failed to build report: %w", err)
	}
	if err := f.Write(w); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	s.logger.Info("Session report exported",
		"session_id", sessionID,
		"user_id", userID,
		"answers", len(answers))
	return fmt.Sprintf("session-%d-attempt-%d.xlsx", session.ID, session.NumberAttempts), nil
}

func writeReport(f *excelize.File, summary *models.Summary, answers []*models.Answer, questions map[uint]*models.Question) error {
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	for _, name := range []string{breakdownSheet, answersSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	summaryRows := [][]interface{}{
		{"Session", summary.SessionID},
		{"User", summary.UserID},
		{"Assignment", summary.AssignmentID},
		{"Status", string(summary.Status)},
		{"Attempt", summary.AttemptNumber},
		{"Total items", summary.TotalItems},
		{"Answered", summary.AnsweredCount},
		{"Correct", summary.CorrectCount},
		{"Incorrect", summary.IncorrectCount},
		{"Score %", summary.TotalScore},
		{"Time (s)", summary.TotalTimeSec},
		{"Started at", summary.StartedAt.Format(reportTimeFormat)},
		{"Submitted at", formatOptionalTime(summary.SubmittedAt)},
		{"Finished at", formatOptionalTime(summary.FinishedAt)},
	}
	if err := writeRows(f, summarySheet, summaryRows); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A"+strconv.Itoa(len(summaryRows)), header); err != nil {
		return err
	}

	breakdownRows := [][]interface{}{{"Dimension", "Group", "Correct", "Total", "Accuracy %"}}
	for _, dim := range []struct {
		name  string
		stats []models.GroupStat
	}{
		{"topic", summary.ByTopic},
		{"type", summary.ByType},
		{"level", summary.ByLevel},
	} {
		for _, g := range dim.stats {
			breakdownRows = append(breakdownRows, []interface{}{dim.name, g.Key, g.Correct, g.Total, g.AccuracyPercent})
		}
	}
	if err := writeRows(f, breakdownSheet, breakdownRows); err != nil {
		return err
	}
	if err := f.SetCellStyle(breakdownSheet, "A1", "E1", header); err != nil {
		return err
	}

	answerRows := [][]interface{}{{"#", "Question", "Topic", "Level", "Type", "Answer", "Correct", "Match %", "Time (s)", "Answered at"}}
	for i, a := range answers {
		topic, level, body := unknownGroup, unknownGroup, ""
		if q, ok := questions[a.QuestionID]; ok {
			topic, level, body = q.TopicName(), string(q.Level), q.Body
		}

		match := ""
		if a.MatchPercent != nil {
			match = strconv.FormatFloat(*a.MatchPercent, 'f', 2, 64)
		}

		answerRows = append(answerRows, []interface{}{
			i + 1,
			body,
			topic,
			level,
			string(a.Type),
			describeAnswer(a, questions[a.QuestionID]),
			a.IsCorrect,
			match,
			round2(float64(a.TimeMs) / 1000),
			a.AnsweredAt.UTC().Format(reportTimeFormat),
		})
	}
	if err := writeRows(f, answersSheet, answerRows); err != nil {
		return err
	}
	return f.SetCellStyle(answersSheet, "A1", "J1", header)
}

const reportTimeFormat = "2006-01-02 15:04:05"

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// describeAnswer renders choice answers as option texts and written answers as given
func describeAnswer(a *models.Answer, q *models.Question) string {
	if a.Text != nil {
		return *a.Text
	}

	parts := make([]string, 0, len(a.SelectedOptionIDs))
	for _, id := range a.SelectedOptionIDs {
		if q != nil {
			if opt, ok := q.OptionByID(id); ok {
				parts = append(parts, opt.Text)
				continue
			}
		}
		parts = append(parts, "#"+strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, "; ")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(reportTimeFormat)
}
