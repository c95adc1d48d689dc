package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeAccountRepo struct {
	accounts map[string]*domain.Account
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if acct, ok := f.accounts[id]; ok {
		return acct, nil
	}
	return nil, out.ErrNotFound
}

func (f *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, out.ErrNotFound
}

func (f *fakeAccountRepo) UpdateCursor(ctx context.Context, id, cursor string) error { return nil }

func (f *fakeAccountRepo) UpdateWatch(ctx context.Context, id, cursor string, expiration time.Time) error {
	return nil
}

func (f *fakeAccountRepo) ListWatchExpiring(ctx context.Context, deadline time.Time) ([]*domain.Account, error) {
	return nil, nil
}

type fakeCategoryRepo struct {
	categories []*domain.Category
	increments map[string]int64
}

func (f *fakeCategoryRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Category, error) {
	return f.categories, nil
}

func (f *fakeCategoryRepo) IncrementCount(ctx context.Context, categoryID string, delta int64) error {
	if f.increments == nil {
		f.increments = make(map[string]int64)
	}
	f.increments[categoryID] += delta
	return nil
}

type fakeMessageRepo struct {
	existing  map[string]bool
	created   []*domain.Message
	archived  []string
	createErr map[string]error
}

func (f *fakeMessageRepo) Exists(ctx context.Context, accountID, providerMessageID string) (bool, error) {
	return f.existing[providerMessageID], nil
}

func (f *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if err, ok := f.createErr[msg.ProviderMessageID]; ok {
		return err
	}
	msg.ID = fmt.Sprintf("row-%d", len(f.created)+1)
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessageRepo) MarkArchived(ctx context.Context, accountID, providerMessageID string) error {
	f.archived = append(f.archived, providerMessageID)
	return nil
}

func (f *fakeMessageRepo) ListByIDs(ctx context.Context, ids []string, userID string) ([]*domain.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) BulkDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	return 0, nil
}

type fakeMailSource struct {
	refs        []out.CandidateRef
	messages    map[string]*out.SourceMessage
	listErr     error
	fetchErr    map[string]error
	archiveErr  map[string]error
	listCalls   int
	fetchCalls  []string
	archiveDone []string
}

func (f *fakeMailSource) ListCandidates(ctx context.Context, account *domain.Account, query string, maxResults int) ([]out.CandidateRef, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs, nil
}

func (f *fakeMailSource) FetchFull(ctx context.Context, account *domain.Account, messageID string) (*out.SourceMessage, error) {
	f.fetchCalls = append(f.fetchCalls, messageID)
	if err, ok := f.fetchErr[messageID]; ok {
		return nil, err
	}
	if msg, ok := f.messages[messageID]; ok {
		return msg, nil
	}
	return nil, errors.New("unknown message")
}

func (f *fakeMailSource) Archive(ctx context.Context, account *domain.Account, messageID string) error {
	if err, ok := f.archiveErr[messageID]; ok {
		return err
	}
	f.archiveDone = append(f.archiveDone, messageID)
	return nil
}

func (f *fakeMailSource) RenewWatch(ctx context.Context, account *domain.Account) (*domain.WatchInfo, error) {
	return nil, errors.New("not implemented")
}

type fakeClassifier struct {
	result       *domain.Classification
	summary      string
	categorizeErr map[string]error
	summarizeErr  map[string]error
}

func (f *fakeClassifier) Categorize(ctx context.Context, in out.ClassifyInput, categories []*domain.Category) (*domain.Classification, error) {
	if err, ok := f.categorizeErr[in.Subject]; ok {
		return nil, err
	}
	return f.result, nil
}

func (f *fakeClassifier) Summarize(ctx context.Context, in out.ClassifyInput) (string, error) {
	if err, ok := f.summarizeErr[in.Subject]; ok {
		return "", err
	}
	return f.summary, nil
}

type fakeBodyStore struct {
	saved []string
}

func (f *fakeBodyStore) Save(ctx context.Context, body *domain.MessageBody) error {
	f.saved = append(f.saved, body.MessageID)
	return nil
}

func (f *fakeBodyStore) Get(ctx context.Context, messageID string) (*domain.MessageBody, error) {
	return nil, nil
}

func (f *fakeBodyStore) DeleteMany(ctx context.Context, messageIDs []string) error { return nil }

// =============================================================================
// Helpers
// =============================================================================

func testAccount() *domain.Account {
	return &domain.Account{
		ID:     "acct-1",
		UserID: "user-1",
		Email:  "me@example.com",
	}
}

func testCategories() []*domain.Category {
	return []*domain.Category{
		{ID: "cat-work", UserID: "user-1", Name: "Work"},
		{ID: "cat-news", UserID: "user-1", Name: "Newsletters"},
	}
}

func sourceMessage(id, subject string) *out.SourceMessage {
	return &out.SourceMessage{
		ID:        id,
		ThreadID:  "thread-" + id,
		Subject:   subject,
		FromEmail: "sender@example.com",
		ToEmails:  []string{"me@example.com"},
		Date:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Snippet:   "snippet",
		BodyText:  "body text",
	}
}

func newTestService(accounts *fakeAccountRepo, cats *fakeCategoryRepo, msgs *fakeMessageRepo, src *fakeMailSource, cls *fakeClassifier, bodies *fakeBodyStore) *Service {
	return NewService(accounts, cats, msgs, bodies, src, cls)
}

// =============================================================================
// Precondition Tests
// =============================================================================

func TestRun_UnknownAccountFailsBeforeProviderCall(t *testing.T) {
	src := &fakeMailSource{}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{}},
		&fakeCategoryRepo{categories: testCategories()},
		&fakeMessageRepo{},
		src,
		&fakeClassifier{},
		&fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "nope"})
	if err == nil {
		t.Fatal("expected error for unknown account")
	}
	if !apperr.IsCode(err, apperr.CodeAccountNotFound) {
		t.Errorf("expected account not found, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
	if src.listCalls != 0 {
		t.Errorf("provider was called %d times before precondition failure", src.listCalls)
	}
}

func TestRun_NoCategoriesFailsBeforeProviderCall(t *testing.T) {
	src := &fakeMailSource{}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: nil},
		&fakeMessageRepo{},
		src,
		&fakeClassifier{},
		&fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"})
	if !apperr.IsCode(err, apperr.CodeNoCategories) {
		t.Fatalf("expected no categories error, got %v", err)
	}
	if src.listCalls != 0 {
		t.Errorf("provider was called despite missing categories")
	}
	if result == nil {
		t.Fatal("expected a result describing the failed run")
	}
	if result.Success || result.Imported != 0 {
		t.Errorf("got success=%v imported=%d, want false/0", result.Success, result.Imported)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected exactly one error message, got %v", result.Errors)
	}
}

func TestRun_ListFailureFailsWholeRun(t *testing.T) {
	src := &fakeMailSource{listErr: errors.New("gmail unavailable")}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: testCategories()},
		&fakeMessageRepo{},
		src,
		&fakeClassifier{},
		&fakeBodyStore{},
	)

	_, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"})
	if !apperr.IsCode(err, apperr.CodeProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestRun_PerMessageFailureDoesNotStopBatch(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}},
		messages: map[string]*out.SourceMessage{
			"m1": sourceMessage("m1", "ok one"),
			"m2": sourceMessage("m2", "broken"),
			"m3": sourceMessage("m3", "ok two"),
		},
	}
	cls := &fakeClassifier{
		result:  &domain.Classification{CategoryID: "cat-work", CategoryName: "Work", Confidence: 0.9, Reasoning: "looks like work"},
		summary: "a summary",
		categorizeErr: map[string]error{
			"broken": apperr.ClassificationUnavailable(errors.New("llm timeout")),
		},
	}
	msgs := &fakeMessageRepo{}
	cats := &fakeCategoryRepo{categories: testCategories()}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		cats, msgs, src, cls, &fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Errorf("got imported=%d failed=%d skipped=%d, want 2/1/0",
			result.Imported, result.Failed, result.Skipped)
	}
	if !result.Success {
		t.Error("expected success with at least one import")
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", result.Errors)
	}
	if len(msgs.created) != 2 {
		t.Errorf("expected 2 persisted rows, got %d", len(msgs.created))
	}
	if cats.increments["cat-work"] != 2 {
		t.Errorf("expected counter delta 2, got %d", cats.increments["cat-work"])
	}
}

func TestRun_ExistingMessageSkippedWithoutFetch(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}, {ID: "m2"}},
		messages: map[string]*out.SourceMessage{
			"m2": sourceMessage("m2", "fresh"),
		},
	}
	msgs := &fakeMessageRepo{existing: map[string]bool{"m1": true}}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: testCategories()},
		msgs, src,
		&fakeClassifier{result: &domain.Classification{CategoryID: "cat-work"}, summary: "s"},
		&fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Imported != 1 {
		t.Errorf("got skipped=%d imported=%d, want 1/1", result.Skipped, result.Imported)
	}
	for _, id := range src.fetchCalls {
		if id == "m1" {
			t.Error("duplicate message was fetched")
		}
	}
}

func TestRun_DuplicateOnCreateCountsAsSkip(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}},
		messages: map[string]*out.SourceMessage{
			"m1": sourceMessage("m1", "raced"),
		},
	}
	msgs := &fakeMessageRepo{createErr: map[string]error{"m1": out.ErrDuplicate}}
	cats := &fakeCategoryRepo{categories: testCategories()}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		cats, msgs, src,
		&fakeClassifier{result: &domain.Classification{CategoryID: "cat-work"}, summary: "s"},
		&fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Imported != 0 || result.Failed != 0 {
		t.Errorf("got skipped=%d imported=%d failed=%d, want 1/0/0",
			result.Skipped, result.Imported, result.Failed)
	}
	if result.Success {
		t.Error("run with zero imports must not report success")
	}
	if got := cats.increments["cat-work"]; got != 0 {
		t.Errorf("counter must not move for a skipped message, got delta %d", got)
	}
}

func TestRun_ArchiveFailureDoesNotAffectImport(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}},
		messages: map[string]*out.SourceMessage{
			"m1": sourceMessage("m1", "keep me"),
		},
		archiveErr: map[string]error{"m1": errors.New("archive denied")},
	}
	msgs := &fakeMessageRepo{}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: testCategories()},
		msgs, src,
		&fakeClassifier{result: &domain.Classification{CategoryID: "cat-work"}, summary: "s"},
		&fakeBodyStore{},
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1", AutoArchive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 || result.Failed != 0 {
		t.Errorf("archive failure leaked into result: %+v", result)
	}
	if len(msgs.archived) != 0 {
		t.Error("archived flag set despite provider archive failure")
	}
}

func TestRun_AutoArchiveMirrorsFlagLocally(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}},
		messages: map[string]*out.SourceMessage{
			"m1": sourceMessage("m1", "archive me"),
		},
	}
	msgs := &fakeMessageRepo{}
	bodies := &fakeBodyStore{}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: testCategories()},
		msgs, src,
		&fakeClassifier{result: &domain.Classification{CategoryID: "cat-news", Confidence: 0.8}, summary: "s"},
		bodies,
	)

	result, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1", AutoArchive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected 1 import, got %+v", result)
	}
	if len(src.archiveDone) != 1 || src.archiveDone[0] != "m1" {
		t.Errorf("expected provider archive for m1, got %v", src.archiveDone)
	}
	if len(msgs.archived) != 1 || msgs.archived[0] != "m1" {
		t.Errorf("expected local archived flag for m1, got %v", msgs.archived)
	}
	if len(bodies.saved) != 1 {
		t.Errorf("expected one body save, got %v", bodies.saved)
	}
}

func TestRun_PersistedMessageCarriesClassification(t *testing.T) {
	src := &fakeMailSource{
		refs: []out.CandidateRef{{ID: "m1"}},
		messages: map[string]*out.SourceMessage{
			"m1": sourceMessage("m1", "quarterly report"),
		},
	}
	msgs := &fakeMessageRepo{}
	svc := newTestService(
		&fakeAccountRepo{accounts: map[string]*domain.Account{"acct-1": testAccount()}},
		&fakeCategoryRepo{categories: testCategories()},
		msgs, src,
		&fakeClassifier{
			result:  &domain.Classification{CategoryID: "cat-work", CategoryName: "Work", Confidence: 0.95, Reasoning: "mentions a report"},
			summary: "the quarterly report is attached",
		},
		&fakeBodyStore{},
	)

	if _, err := svc.Run(context.Background(), domain.ImportOptions{AccountID: "acct-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msgs.created) != 1 {
		t.Fatalf("expected 1 row, got %d", len(msgs.created))
	}
	got := msgs.created[0]
	if got.CategoryID == nil || *got.CategoryID != "cat-work" {
		t.Errorf("category not carried: %+v", got.CategoryID)
	}
	if got.Summary != "the quarterly report is attached" {
		t.Errorf("summary not carried: %q", got.Summary)
	}
	if got.Confidence != 0.95 {
		t.Errorf("confidence not carried: %v", got.Confidence)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("persisted row must be completed, got %q", got.Status)
	}
}
