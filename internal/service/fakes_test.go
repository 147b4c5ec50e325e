package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mareye-api/internal/ai"
	"mareye-api/internal/email"
	"mareye-api/internal/models"
	"mareye-api/internal/repository/mongo"
)

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	err     error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: make(map[string]*models.User)}
	for _, u := range users {
		if u.ID.IsZero() {
			u.ID = bson.NewObjectID()
		}
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return nil, mongo.ErrDuplicate
	}
	u := *user
	u.ID = bson.NewObjectID()
	f.byEmail[u.Email] = &u
	return &u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, mongo.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, mongo.ErrInvalidID
	}
	for _, u := range f.byEmail {
		if u.ID == oid {
			return u, nil
		}
	}
	return nil, mongo.ErrNotFound
}

func (f *fakeUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUsers) UpsertGoogleUser(_ context.Context, p *models.GoogleProfile, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[p.Email]
	if !ok {
		u = &models.User{
			ID:           bson.NewObjectID(),
			Username:     p.Email,
			Email:        p.Email,
			Subscription: models.DefaultSubscription(),
			Tokens:       models.DefaultTokenUsage(now),
			CreatedAt:    now,
		}
		f.byEmail[p.Email] = u
	}
	u.GoogleID = p.Sub
	u.FirstName = p.GivenName
	u.LastName = p.FamilyName
	u.Avatar = p.Picture
	u.IsEmailVerified = p.EmailVerified
	u.UpdatedAt = now
	return u, nil
}

type fakeWatchlist struct {
	items []models.WatchlistItem
}

func (f *fakeWatchlist) List(_ context.Context, userID string, limit int64) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	for i := len(f.items) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if f.items[i].UserID == userID {
			out = append(out, f.items[i])
		}
	}
	return out, nil
}

func (f *fakeWatchlist) Add(_ context.Context, item *models.WatchlistItem) (string, error) {
	it := *item
	it.ID = bson.NewObjectID()
	f.items = append(f.items, it)
	return it.ID.Hex(), nil
}

func (f *fakeWatchlist) Delete(_ context.Context, userID string, id bson.ObjectID) (bool, error) {
	for i, it := range f.items {
		if it.ID == id && it.UserID == userID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeAnalyses struct {
	mu        sync.Mutex
	analyses  []models.Analysis
	sequences []models.GeneSequence
	listErr   error
}

func (f *fakeAnalyses) InsertAnalysis(_ context.Context, a *models.Analysis) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = bson.NewObjectID()
	f.analyses = append(f.analyses, cp)
	return cp.ID.Hex(), nil
}

func (f *fakeAnalyses) InsertGeneSequence(_ context.Context, g *models.GeneSequence) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	cp.ID = bson.NewObjectID()
	f.sequences = append(f.sequences, cp)
	return cp.ID.Hex(), nil
}

func (f *fakeAnalyses) ListAnalyses(_ context.Context, userID string, limit int64) ([]models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Analysis
	for _, a := range f.analyses {
		if a.UserID == userID && int64(len(out)) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAnalyses) ListGeneSequences(_ context.Context, userID string, limit int64) ([]models.GeneSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GeneSequence
	for _, g := range f.sequences {
		if g.UserID == userID && int64(len(out)) < limit {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeAnalyzer struct {
	species  *ai.SpeciesResult
	threat   *ai.ThreatResult
	err      error
	lastSeq  string
	lastType string
	lastHint string
}

func (f *fakeAnalyzer) IdentifySpecies(_ context.Context, _ []byte, _, hint string) (*ai.SpeciesResult, error) {
	f.lastHint = hint
	return f.species, f.err
}

func (f *fakeAnalyzer) AnalyzeGeneSequence(_ context.Context, seq, seqType, _ string) (*ai.SpeciesResult, error) {
	f.lastSeq, f.lastType = seq, seqType
	return f.species, f.err
}

func (f *fakeAnalyzer) AssessThreats(_ context.Context, _ ai.ThreatInput) (*ai.ThreatResult, error) {
	return f.threat, f.err
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Chat(context.Context, string, string) (string, error) { return f.reply, f.err }

type fakeIndex struct {
	mu   sync.Mutex
	docs []models.AnalysisDocument
	err  error
}

func (f *fakeIndex) Index(_ context.Context, doc models.AnalysisDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, userID, text string, _ int) ([]models.AnalysisDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AnalysisDocument
	for _, d := range f.docs {
		if d.UserID == userID && d.Title == text {
			out = append(out, d)
		}
	}
	return out, f.err
}

type fakeMailer struct {
	mu       sync.Mutex
	otps     map[string]string
	welcomes []string
	contacts []email.ContactForm
	data     []email.DataSubmission
	err      error
}

func (f *fakeMailer) SendOTP(_ context.Context, to, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.otps == nil {
		f.otps = make(map[string]string)
	}
	f.otps[to] = code
	return f.err
}

func (f *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomes = append(f.welcomes, to)
	return nil
}

func (f *fakeMailer) SendContact(_ context.Context, c email.ContactForm) error {
	f.contacts = append(f.contacts, c)
	return f.err
}

func (f *fakeMailer) SendDataSubmission(_ context.Context, d email.DataSubmission) error {
	f.data = append(f.data, d)
	return f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e models.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func syncRun(fn func()) { fn() }
