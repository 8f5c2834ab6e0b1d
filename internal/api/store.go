package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soaringjerry/Canvass/internal/models"
)

type pairKey struct{ surveyID, userID string }

type memoryStore struct {
	mu           sync.RWMutex
	users        map[string]*models.User
	usersByEmail map[string]string
	surveys      map[string]*models.Survey
	invitations  map[string]*models.Invitation
	byToken      map[string]string
	byPair       map[pairKey]string
	responses    map[string]*models.Response
	byInvitation map[string]string
	audit        []models.AuditEntry

	snapshotPath string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:        map[string]*models.User{},
		usersByEmail: map[string]string{},
		surveys:      map[string]*models.Survey{},
		invitations:  map[string]*models.Invitation{},
		byToken:      map[string]string{},
		byPair:       map[pairKey]string{},
		responses:    map[string]*models.Response{},
		byInvitation: map[string]string{},
		audit:        []models.AuditEntry{},
	}
}

// NewMemoryStore returns an empty non-persistent store.
func NewMemoryStore() Store { return newMemoryStore() }

func copySurvey(sv *models.Survey) *models.Survey {
	cp := *sv
	cp.Questions = append([]models.Question(nil), sv.Questions...)
	return &cp
}

func copyInvitation(inv *models.Invitation) *models.Invitation {
	cp := *inv
	if inv.CompletedAt != nil {
		at := *inv.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func copyResponse(r *models.Response) *models.Response {
	cp := *r
	cp.Answers = append([]models.Answer(nil), r.Answers...)
	return &cp
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) AddUser(_ context.Context, u *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := models.NormalizeEmail(u.Email)
	if _, taken := s.usersByEmail[email]; taken {
		return false, nil
	}
	cp := *u
	cp.Email = email
	s.users[u.ID] = &cp
	s.usersByEmail[email] = u.ID
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		delete(s.usersByEmail, email)
		return false, err
	}
	return true, nil
}

func (s *memoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.usersByEmail[models.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetUser(ctx, id)
}

func (s *memoryStore) AddSurvey(_ context.Context, sv *models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.surveys[sv.ID]; exists {
		return fmt.Errorf("survey %s already exists", sv.ID)
	}
	s.surveys[sv.ID] = copySurvey(sv)
	if err := s.persistLocked(); err != nil {
		delete(s.surveys, sv.ID)
		return err
	}
	return nil
}

func (s *memoryStore) GetSurvey(_ context.Context, id string) (*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sv, ok := s.surveys[id]; ok {
		return copySurvey(sv), nil
	}
	return nil, nil
}

func (s *memoryStore) UpdateSurveyStatus(_ context.Context, id string, from, to models.SurveyStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.surveys[id]
	if !ok || sv.Status != from {
		return false, nil
	}
	prevAt := sv.UpdatedAt
	sv.Status = to
	sv.UpdatedAt = at
	if err := s.persistLocked(); err != nil {
		sv.Status = from
		sv.UpdatedAt = prevAt
		return false, err
	}
	return true, nil
}

func (s *memoryStore) ListSurveysByCreator(_ context.Context, creatorID string) ([]*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Survey{}
	for _, sv := range s.surveys {
		if sv.CreatorID == creatorID {
			out = append(out, copySurvey(sv))
		}
	}
	return out, nil
}

// CreateInvitation checks the (survey, user) pair and inserts under one lock,
// so concurrent callers for the same pair see exactly one success.
func (s *memoryStore) CreateInvitation(_ context.Context, inv *models.Invitation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{inv.SurveyID, inv.UserID}
	if _, exists := s.byPair[key]; exists {
		return false, nil
	}
	if _, clash := s.byToken[inv.Token]; clash {
		return false, fmt.Errorf("invitation token collision")
	}
	s.invitations[inv.ID] = copyInvitation(inv)
	s.byPair[key] = inv.ID
	s.byToken[inv.Token] = inv.ID
	if err := s.persistLocked(); err != nil {
		delete(s.invitations, inv.ID)
		delete(s.byPair, key)
		delete(s.byToken, inv.Token)
		return false, err
	}
	return true, nil
}

func (s *memoryStore) GetInvitation(_ context.Context, id string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inv, ok := s.invitations[id]; ok {
		return copyInvitation(inv), nil
	}
	return nil, nil
}

func (s *memoryStore) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	s.mu.RLock()
	id, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetInvitation(ctx, id)
}

func (s *memoryStore) FindInvitation(ctx context.Context, surveyID, userID string) (*models.Invitation, error) {
	s.mu.RLock()
	id, ok := s.byPair[pairKey{surveyID, userID}]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetInvitation(ctx, id)
}

func (s *memoryStore) filterInvitations(keep func(*models.Invitation) bool) []*models.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Invitation{}
	for _, inv := range s.invitations {
		if keep(inv) {
			out = append(out, copyInvitation(inv))
		}
	}
	return out
}

func (s *memoryStore) ListInvitationsBySurvey(_ context.Context, surveyID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.SurveyID == surveyID }), nil
}

func (s *memoryStore) ListInvitationsByUser(_ context.Context, userID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.UserID == userID }), nil
}

func (s *memoryStore) ListInvitationsByCreator(_ context.Context, creatorID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.CreatorID == creatorID }), nil
}

// CompleteInvitation flips pending to completed and records resp under one lock.
func (s *memoryStore) CompleteInvitation(_ context.Context, resp *models.Response, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[resp.InvitationID]
	if !ok || inv.Status != models.InvitationPending {
		return false, nil
	}
	if _, exists := s.byInvitation[resp.InvitationID]; exists {
		return false, nil
	}
	at := completedAt
	prevAt := inv.CompletedAt
	inv.Status = models.InvitationCompleted
	inv.CompletedAt = &at
	s.responses[resp.ID] = copyResponse(resp)
	s.byInvitation[resp.InvitationID] = resp.ID
	if err := s.persistLocked(); err != nil {
		inv.Status = models.InvitationPending
		inv.CompletedAt = prevAt
		delete(s.responses, resp.ID)
		delete(s.byInvitation, resp.InvitationID)
		return false, err
	}
	return true, nil
}

func (s *memoryStore) GetResponse(_ context.Context, id string) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.responses[id]; ok {
		return copyResponse(r), nil
	}
	return nil, nil
}

func (s *memoryStore) ListResponsesBySurvey(_ context.Context, surveyID string) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Response{}
	for _, r := range s.responses {
		if r.SurveyID == surveyID {
			out = append(out, copyResponse(r))
		}
	}
	return out, nil
}

func (s *memoryStore) ListResponsesByCreator(_ context.Context, creatorID string) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Response{}
	for _, r := range s.responses {
		if sv, ok := s.surveys[r.SurveyID]; ok && sv.CreatorID == creatorID {
			out = append(out, copyResponse(r))
		}
	}
	return out, nil
}

// CreatorActivity collects surveys, invitations and responses under one read lock.
func (s *memoryStore) CreatorActivity(_ context.Context, creatorID string) (*models.CreatorActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act := &models.CreatorActivity{
		Surveys:     []*models.Survey{},
		Invitations: []*models.Invitation{},
		Responses:   []*models.Response{},
	}
	for _, sv := range s.surveys {
		if sv.CreatorID == creatorID {
			act.Surveys = append(act.Surveys, copySurvey(sv))
		}
	}
	for _, inv := range s.invitations {
		if inv.CreatorID == creatorID {
			act.Invitations = append(act.Invitations, copyInvitation(inv))
		}
	}
	for _, r := range s.responses {
		if sv, ok := s.surveys[r.SurveyID]; ok && sv.CreatorID == creatorID {
			act.Responses = append(act.Responses, copyResponse(r))
		}
	}
	return act, nil
}

func (s *memoryStore) AddAudit(_ context.Context, e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	// The entry stays in memory and is written with the next successful snapshot.
	if err := s.persistLocked(); err != nil {
		log.Warn().Err(err).Str("action", e.Action).Msg("audit entry not yet persisted")
	}
}

func (s *memoryStore) ListAudit(context.Context) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out, nil
}

// Snapshot is a point-in-time copy of a memory store, secrets included.
type Snapshot struct {
	Users       []*models.User
	Surveys     []*models.Survey
	Invitations []*models.Invitation
	Responses   []*models.Response
	Audit       []models.AuditEntry
}

// snapshotInvitation and snapshotUser keep the fields models hides from JSON.
type snapshotInvitation struct {
	models.Invitation
	Token string `json:"token"`
}

type snapshotUser struct {
	models.User
	PassHash []byte `json:"passHash"`
}

type snapshotFile struct {
	Users       []snapshotUser       `json:"users"`
	Surveys     []*models.Survey     `json:"surveys"`
	Invitations []snapshotInvitation `json:"invitations"`
	Responses   []*models.Response   `json:"responses"`
	Audit       []models.AuditEntry  `json:"audit"`
}

// NewMemoryStoreFromPath loads path if it exists and saves every mutation back to it.
func NewMemoryStoreFromPath(path string) (Store, error) {
	s := newMemoryStore()
	s.snapshotPath = path
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var f snapshotFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s.restore(&f)
	return s, nil
}

// LoadSnapshot reads a snapshot file without attaching a store to it.
func LoadSnapshot(path string) (*Snapshot, error) {
	st, err := NewMemoryStoreFromPath(path)
	if err != nil {
		return nil, err
	}
	ms := st.(*memoryStore)
	ms.mu.Lock()
	ms.snapshotPath = ""
	ms.mu.Unlock()
	return ms.Snapshot(), nil
}

func (s *memoryStore) restore(f *snapshotFile) {
	for _, u := range f.Users {
		cp := u.User
		cp.PassHash = u.PassHash
		cp.Email = models.NormalizeEmail(cp.Email)
		s.users[cp.ID] = &cp
		s.usersByEmail[cp.Email] = cp.ID
	}
	for _, sv := range f.Surveys {
		s.surveys[sv.ID] = copySurvey(sv)
	}
	for _, si := range f.Invitations {
		inv := si.Invitation
		inv.Token = si.Token
		s.invitations[inv.ID] = copyInvitation(&inv)
		s.byPair[pairKey{inv.SurveyID, inv.UserID}] = inv.ID
		s.byToken[inv.Token] = inv.ID
	}
	for _, r := range f.Responses {
		s.responses[r.ID] = copyResponse(r)
		s.byInvitation[r.InvitationID] = r.ID
	}
	s.audit = append(s.audit, f.Audit...)
}

// Snapshot returns a deep copy of the store contents.
func (s *memoryStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{Audit: append([]models.AuditEntry(nil), s.audit...)}
	for _, u := range s.users {
		cp := *u
		snap.Users = append(snap.Users, &cp)
	}
	for _, sv := range s.surveys {
		snap.Surveys = append(snap.Surveys, copySurvey(sv))
	}
	for _, inv := range s.invitations {
		snap.Invitations = append(snap.Invitations, copyInvitation(inv))
	}
	for _, r := range s.responses {
		snap.Responses = append(snap.Responses, copyResponse(r))
	}
	return snap
}

// persistLocked writes the snapshot file. Callers hold s.mu and undo their
// change when it fails, so a reported success is always on disk.
func (s *memoryStore) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	f := snapshotFile{
		Surveys:     make([]*models.Survey, 0, len(s.surveys)),
		Invitations: make([]snapshotInvitation, 0, len(s.invitations)),
		Responses:   make([]*models.Response, 0, len(s.responses)),
		Audit:       s.audit,
	}
	for _, u := range s.users {
		f.Users = append(f.Users, snapshotUser{User: *u, PassHash: u.PassHash})
	}
	for _, sv := range s.surveys {
		f.Surveys = append(f.Surveys, sv)
	}
	for _, inv := range s.invitations {
		f.Invitations = append(f.Invitations, snapshotInvitation{Invitation: *inv, Token: inv.Token})
	}
	for _, r := range s.responses {
		f.Responses = append(f.Responses, r)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return s.snapshotErr("encode snapshot", err)
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return s.snapshotErr("create snapshot dir", err)
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return s.snapshotErr("write snapshot", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return s.snapshotErr("replace snapshot", err)
	}
	return nil
}

func (s *memoryStore) snapshotErr(op string, err error) error {
	log.Error().Err(err).Str("path", s.snapshotPath).Msg(op)
	return fmt.Errorf("%s: %w", op, err)
}
