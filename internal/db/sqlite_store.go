package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/soaringjerry/Canvass/internal/api"
	"github.com/soaringjerry/Canvass/internal/metrics"
	"github.com/soaringjerry/Canvass/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

// Open opens the database file at path. Writes go through a single
// connection so SQLite never reports a lock to concurrent requests.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *SQLiteStore) logErr(op string, err error) error {
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		log.Error().Err(err).Str("op", op).Msg("sqlite store")
	}
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed width so text ORDER BY on time columns is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := decodeTime(ns.String)
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ----- users -----

func (s *SQLiteStore) AddUser(ctx context.Context, u *models.User) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, pass_hash, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		u.ID, u.Name, models.NormalizeEmail(u.Email), u.PassHash, encodeTime(u.CreatedAt))
	if err != nil {
		return false, s.logErr("add user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.logErr("add user", err)
	}
	return n == 1, nil
}

const userColumns = `id, name, email, pass_hash, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PassHash, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = decodeTime(created)
	return &u, nil
}

func (s *SQLiteStore) getUser(ctx context.Context, op, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr(op, err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "get user", "id = ?", id)
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "find user", "email = ?", models.NormalizeEmail(email))
}

// ----- surveys -----

const surveyColumns = `id, title, description, creator_id, questions, status, original_filename, created_at, updated_at`

func scanSurvey(row rowScanner) (*models.Survey, error) {
	var sv models.Survey
	var desc, filename sql.NullString
	var questions, status, created, updated string
	if err := row.Scan(&sv.ID, &sv.Title, &desc, &sv.CreatorID, &questions, &status, &filename, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &sv.Questions); err != nil {
		return nil, fmt.Errorf("decode questions for survey %s: %w", sv.ID, err)
	}
	sv.Description = desc.String
	sv.OriginalFilename = filename.String
	sv.Status = models.SurveyStatus(status)
	sv.CreatedAt = decodeTime(created)
	sv.UpdatedAt = decodeTime(updated)
	return &sv, nil
}

func (s *SQLiteStore) AddSurvey(ctx context.Context, sv *models.Survey) error {
	questions, err := json.Marshal(sv.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO surveys (`+surveyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.Title, toNullString(sv.Description), sv.CreatorID, string(questions), string(sv.Status),
		toNullString(sv.OriginalFilename), encodeTime(sv.CreatedAt), encodeTime(sv.UpdatedAt))
	return s.logErr("add survey", err)
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	sv, err := scanSurvey(s.db.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("get survey", err)
	}
	return sv, nil
}

func (s *SQLiteStore) UpdateSurveyStatus(ctx context.Context, id string, from, to models.SurveyStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE surveys SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), encodeTime(at), id, string(from))
	if err != nil {
		return false, s.logErr("update survey status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.logErr("update survey status", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListSurveysByCreator(ctx context.Context, creatorID string) ([]*models.Survey, error) {
	return s.listSurveys(ctx, s.db, creatorID)
}

func (s *SQLiteStore) listSurveys(ctx context.Context, q querier, creatorID string) ([]*models.Survey, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE creator_id = ? ORDER BY created_at DESC, id`, creatorID)
	if err != nil {
		return nil, s.logErr("list surveys", err)
	}
	defer rows.Close()
	out := []*models.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, s.logErr("list surveys", err)
		}
		out = append(out, sv)
	}
	return out, s.logErr("list surveys", rows.Err())
}

// ----- invitations -----

const invitationColumns = `id, survey_id, creator_id, user_id, token, status, created_at, completed_at`

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	var inv models.Invitation
	var status, created string
	var completed sql.NullString
	if err := row.Scan(&inv.ID, &inv.SurveyID, &inv.CreatorID, &inv.UserID, &inv.Token, &status, &created, &completed); err != nil {
		return nil, err
	}
	inv.Status = models.InvitationStatus(status)
	inv.CreatedAt = decodeTime(created)
	inv.CompletedAt = decodeNullTime(completed)
	return &inv, nil
}

// CreateInvitation relies on UNIQUE(survey_id, user_id): a conflicting insert
// affects no rows and reports false.
func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *models.Invitation) (bool, error) {
	var completed sql.NullString
	if inv.CompletedAt != nil {
		completed = sql.NullString{String: encodeTime(*inv.CompletedAt), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(survey_id, user_id) DO NOTHING`,
		inv.ID, inv.SurveyID, inv.CreatorID, inv.UserID, inv.Token, string(inv.Status), encodeTime(inv.CreatedAt), completed)
	if err != nil {
		return false, s.logErr("create invitation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.logErr("create invitation", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) getInvitation(ctx context.Context, op, where string, args ...any) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr(op, err)
	}
	return inv, nil
}

func (s *SQLiteStore) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	return s.getInvitation(ctx, "get invitation", "id = ?", id)
}

func (s *SQLiteStore) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	return s.getInvitation(ctx, "get invitation by token", "token = ?", token)
}

func (s *SQLiteStore) FindInvitation(ctx context.Context, surveyID, userID string) (*models.Invitation, error) {
	return s.getInvitation(ctx, "find invitation", "survey_id = ? AND user_id = ?", surveyID, userID)
}

func (s *SQLiteStore) listInvitations(ctx context.Context, q querier, op, column, value string) ([]*models.Invitation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE `+column+` = ? ORDER BY created_at DESC, id`, value)
	if err != nil {
		return nil, s.logErr(op, err)
	}
	defer rows.Close()
	out := []*models.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, s.logErr(op, err)
		}
		out = append(out, inv)
	}
	return out, s.logErr(op, rows.Err())
}

func (s *SQLiteStore) ListInvitationsBySurvey(ctx context.Context, surveyID string) ([]*models.Invitation, error) {
	return s.listInvitations(ctx, s.db, "list invitations by survey", "survey_id", surveyID)
}

func (s *SQLiteStore) ListInvitationsByUser(ctx context.Context, userID string) ([]*models.Invitation, error) {
	return s.listInvitations(ctx, s.db, "list invitations by user", "user_id", userID)
}

func (s *SQLiteStore) ListInvitationsByCreator(ctx context.Context, creatorID string) ([]*models.Invitation, error) {
	return s.listInvitations(ctx, s.db, "list invitations by creator", "creator_id", creatorID)
}

// ----- responses -----

const responseColumns = `id, survey_id, respondent_id, invitation_id, answers, completion_time, submitted_at`

func scanResponse(row rowScanner) (*models.Response, error) {
	var r models.Response
	var answers, submitted string
	if err := row.Scan(&r.ID, &r.SurveyID, &r.RespondentID, &r.InvitationID, &answers, &r.CompletionTime, &submitted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers for response %s: %w", r.ID, err)
	}
	r.SubmittedAt = decodeTime(submitted)
	return &r, nil
}

// CompleteInvitation flips the invitation with a status-guarded UPDATE and
// inserts the response in the same transaction. Zero rows updated means
// another submission won; nothing is written in that case.
func (s *SQLiteStore) CompleteInvitation(ctx context.Context, resp *models.Response, completedAt time.Time) (ok bool, err error) {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, s.logErr("complete invitation", err)
	}
	defer func() {
		if !ok {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE invitations SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(models.InvitationCompleted), encodeTime(completedAt), resp.InvitationID, string(models.InvitationPending))
	if err != nil {
		return false, s.logErr("complete invitation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.logErr("complete invitation", err)
	}
	if n != 1 {
		return false, nil
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO responses (`+responseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(invitation_id) DO NOTHING`,
		resp.ID, resp.SurveyID, resp.RespondentID, resp.InvitationID, string(answers), resp.CompletionTime, encodeTime(resp.SubmittedAt))
	if err != nil {
		return false, s.logErr("insert response", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return false, s.logErr("insert response", err)
	}
	if n != 1 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, s.logErr("complete invitation", err)
	}
	return true, nil
}

func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logErr("get response", err)
	}
	return r, nil
}

func (s *SQLiteStore) queryResponses(ctx context.Context, q querier, op, query string, arg any) ([]*models.Response, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, s.logErr(op, err)
	}
	defer rows.Close()
	out := []*models.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, s.logErr(op, err)
		}
		out = append(out, r)
	}
	return out, s.logErr(op, rows.Err())
}

func (s *SQLiteStore) ListResponsesBySurvey(ctx context.Context, surveyID string) ([]*models.Response, error) {
	return s.queryResponses(ctx, s.db, "list responses by survey",
		`SELECT `+responseColumns+` FROM responses WHERE survey_id = ? ORDER BY submitted_at, id`, surveyID)
}

const responsesByCreatorQuery = `SELECT r.id, r.survey_id, r.respondent_id, r.invitation_id, r.answers, r.completion_time, r.submitted_at
	 FROM responses r JOIN surveys s ON s.id = r.survey_id
	 WHERE s.creator_id = ? ORDER BY r.submitted_at, r.id`

func (s *SQLiteStore) ListResponsesByCreator(ctx context.Context, creatorID string) ([]*models.Response, error) {
	return s.queryResponses(ctx, s.db, "list responses by creator", responsesByCreatorQuery, creatorID)
}

// CreatorActivity reads a creator's surveys, invitations and responses inside
// one read-only transaction so the three lists agree with each other.
func (s *SQLiteStore) CreatorActivity(ctx context.Context, creatorID string) (*models.CreatorActivity, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, s.logErr("begin creator activity", err)
	}
	defer func() { _ = tx.Rollback() }()

	act := &models.CreatorActivity{}
	if act.Surveys, err = s.listSurveys(ctx, tx, creatorID); err != nil {
		return nil, err
	}
	if act.Invitations, err = s.listInvitations(ctx, tx, "list invitations by creator", "creator_id", creatorID); err != nil {
		return nil, err
	}
	if act.Responses, err = s.queryResponses(ctx, tx, "list responses by creator", responsesByCreatorQuery, creatorID); err != nil {
		return nil, err
	}
	return act, nil
}

// ----- audit -----

func (s *SQLiteStore) AddAudit(ctx context.Context, e models.AuditEntry) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		encodeTime(e.Time), e.Actor, e.Action, e.Target, toNullString(e.Note))
	_ = s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, actor, action, target, note FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, s.logErr("list audit", err)
	}
	defer rows.Close()
	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var at string
		var note sql.NullString
		if err := rows.Scan(&at, &e.Actor, &e.Action, &e.Target, &note); err != nil {
			return nil, s.logErr("list audit", err)
		}
		e.Time = decodeTime(at)
		e.Note = note.String
		out = append(out, e)
	}
	return out, s.logErr("list audit", rows.Err())
}

var _ api.Store = (*SQLiteStore)(nil)
