package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func questions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{Text: "Question", ShuffledOptions: []string{"1", "2", "3", "4"}}
	}
	return qs
}

func ofType[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func noticesOf(effects []Effect, kind NoticeKind) []Notice {
	var out []Notice
	for _, n := range ofType[Notify](effects) {
		if n.Notice.Kind == kind {
			out = append(out, n.Notice)
		}
	}
	return out
}

func errorCodes(effects []Effect) []response.ErrCode {
	var out []response.ErrCode
	for _, n := range noticesOf(effects, NoticeError) {
		out = append(out, n.Code)
	}
	return out
}

func commands(effects []Effect) []PlatformCommand {
	var out []PlatformCommand
	for _, i := range ofType[Issue](effects) {
		out = append(out, i.Command)
	}
	return out
}

// fakeRemote is a scripted assessment service.
type fakeRemote struct {
	mu sync.Mutex

	questions   *assessment.QuestionSet
	questionErr error
	validation  *assessment.Validation
	validateErr error
	receipt     *assessment.SubmitReceipt
	submitErr   error

	// release, when set, blocks SubmitAnswers until closed.
	release chan struct{}

	questionCalls int
	validateCalls int
	submitCalls   int
	userIDs       []string
	submitted     map[int]string
}

func (f *fakeRemote) GetQuestions(_ context.Context, _, userID string) (*assessment.QuestionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	f.userIDs = append(f.userIDs, userID)
	return f.questions, f.questionErr
}

func (f *fakeRemote) ValidateSession(_ context.Context, _ string) (*assessment.Validation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if f.validation == nil {
		return &assessment.Validation{Valid: true}, nil
	}
	return f.validation, nil
}

func (f *fakeRemote) SubmitAnswers(_ context.Context, _ string, answers map[int]string) (*assessment.SubmitReceipt, error) {
	f.mu.Lock()
	f.submitCalls++
	f.submitted = answers
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.receipt == nil {
		return &assessment.SubmitReceipt{Success: true}, nil
	}
	return f.receipt, nil
}

func (f *fakeRemote) counts() (questions, validate, submit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questionCalls, f.validateCalls, f.submitCalls
}

// fakePlatform records everything pushed to the candidate.
type fakePlatform struct {
	mu       sync.Mutex
	notices  []Notice
	commands []PlatformCommand
}

func (p *fakePlatform) Notify(n Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
}

func (p *fakePlatform) Command(c PlatformCommand) {
	p.mu.Lock()
	p.commands = append(p.commands, c)
	p.mu.Unlock()
}

func (p *fakePlatform) errorCodes() []response.ErrCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []response.ErrCode
	for _, n := range p.notices {
		if n.Kind == NoticeError {
			out = append(out, n.Code)
		}
	}
	return out
}

func (p *fakePlatform) has(kind NoticeKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func (p *fakePlatform) redirects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.commands {
		if c.Name == CommandRedirect {
			out = append(out, c.Target)
		}
	}
	return out
}

// memSnapshots is a synchronous in-memory loader and sink.
type memSnapshots struct {
	mu      sync.Mutex
	entries map[string]model.PersistedSnapshot
	saves   int
	clears  int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{entries: make(map[string]model.PersistedSnapshot)}
}

func (m *memSnapshots) Load(_ context.Context, key string) (*model.PersistedSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memSnapshots) Save(key string, snap model.PersistedSnapshot) {
	m.mu.Lock()
	m.entries[key] = snap
	m.saves++
	m.mu.Unlock()
}

func (m *memSnapshots) Clear(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.clears++
	m.mu.Unlock()
}

func (m *memSnapshots) get(key string) (model.PersistedSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.entries[key]
	return snap, ok
}

type memAudit struct {
	mu      sync.Mutex
	records []model.AuditRecord
}

func (a *memAudit) Record(_ context.Context, rec model.AuditRecord) error {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) kinds() []model.AuditKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.AuditKind
	for _, r := range a.records {
		out = append(out, r.Kind)
	}
	return out
}
