package bulkops

import (
	"context"
	"errors"
	"testing"

	"triage_server/core/domain"
)

type fakeMessageRepo struct {
	owned      map[string]*domain.Message
	deleteRet  int64
	deleteErr  error
	deletedIDs []string
}

func (f *fakeMessageRepo) Exists(ctx context.Context, accountID, providerMessageID string) (bool, error) {
	return false, nil
}

func (f *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) error { return nil }

func (f *fakeMessageRepo) MarkArchived(ctx context.Context, accountID, providerMessageID string) error {
	return nil
}

func (f *fakeMessageRepo) ListByIDs(ctx context.Context, ids []string, userID string) ([]*domain.Message, error) {
	var result []*domain.Message
	for _, id := range ids {
		if msg, ok := f.owned[id]; ok {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (f *fakeMessageRepo) BulkDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	f.deletedIDs = ids
	return f.deleteRet, f.deleteErr
}

type fakeBodyStore struct {
	deleted   []string
	deleteErr error
}

func (f *fakeBodyStore) Save(ctx context.Context, body *domain.MessageBody) error { return nil }

func (f *fakeBodyStore) Get(ctx context.Context, messageID string) (*domain.MessageBody, error) {
	return nil, nil
}

func (f *fakeBodyStore) DeleteMany(ctx context.Context, messageIDs []string) error {
	f.deleted = messageIDs
	return f.deleteErr
}

type fakeUnsubscriber struct {
	errs  map[string]error
	calls []string
}

func (f *fakeUnsubscriber) Unsubscribe(ctx context.Context, link string) error {
	f.calls = append(f.calls, link)
	if err, ok := f.errs[link]; ok {
		return err
	}
	return nil
}

func link(s string) *string { return &s }

func ownedMessage(id string, unsubscribeLink *string) *domain.Message {
	return &domain.Message{
		ID:              id,
		AccountID:       "acct-1",
		Subject:         "subject " + id,
		UnsubscribeLink: unsubscribeLink,
	}
}

// =============================================================================
// Delete
// =============================================================================

func TestDelete_ReturnsRepositoryCount(t *testing.T) {
	repo := &fakeMessageRepo{
		owned: map[string]*domain.Message{
			"m1": ownedMessage("m1", nil),
			"m2": ownedMessage("m2", nil),
		},
		deleteRet: 2,
	}
	bodies := &fakeBodyStore{}
	svc := NewService(repo, bodies, &fakeUnsubscriber{})

	deleted, err := svc.Delete(context.Background(), "user-1", []string{"m1", "m2", "not-owned"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}
	if len(bodies.deleted) != 2 {
		t.Errorf("body cleanup should cover only owned rows, got %v", bodies.deleted)
	}
}

func TestDelete_BodyCleanupFailureIsNotFatal(t *testing.T) {
	repo := &fakeMessageRepo{
		owned:     map[string]*domain.Message{"m1": ownedMessage("m1", nil)},
		deleteRet: 1,
	}
	bodies := &fakeBodyStore{deleteErr: errors.New("mongo down")}
	svc := NewService(repo, bodies, &fakeUnsubscriber{})

	deleted, err := svc.Delete(context.Background(), "user-1", []string{"m1"})
	if err != nil {
		t.Fatalf("body cleanup failure must not fail the delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestDelete_RepositoryErrorPropagates(t *testing.T) {
	repo := &fakeMessageRepo{
		owned:     map[string]*domain.Message{"m1": ownedMessage("m1", nil)},
		deleteErr: errors.New("tx failed"),
	}
	bodies := &fakeBodyStore{}
	svc := NewService(repo, bodies, &fakeUnsubscriber{})

	_, err := svc.Delete(context.Background(), "user-1", []string{"m1"})
	if err == nil {
		t.Fatal("expected error from failed transaction")
	}
	if bodies.deleted != nil {
		t.Error("bodies must not be touched when the delete fails")
	}
}

func TestDelete_EmptyInputIsNoop(t *testing.T) {
	repo := &fakeMessageRepo{}
	svc := NewService(repo, &fakeBodyStore{}, &fakeUnsubscriber{})

	deleted, err := svc.Delete(context.Background(), "user-1", nil)
	if err != nil || deleted != 0 {
		t.Errorf("expected 0/nil for empty input, got %d/%v", deleted, err)
	}
	if repo.deletedIDs != nil {
		t.Error("repository must not be called for empty input")
	}
}

// =============================================================================
// Unsubscribe
// =============================================================================

func TestUnsubscribe_PerMessageIndependence(t *testing.T) {
	repo := &fakeMessageRepo{
		owned: map[string]*domain.Message{
			"m1": ownedMessage("m1", link("https://a.example/unsub")),
			"m2": ownedMessage("m2", link("https://b.example/unsub")),
			"m3": ownedMessage("m3", link("https://c.example/unsub")),
		},
	}
	unsub := &fakeUnsubscriber{
		errs: map[string]error{"https://b.example/unsub": errors.New("endpoint returned 500")},
	}
	svc := NewService(repo, &fakeBodyStore{}, unsub)

	results, err := svc.Unsubscribe(context.Background(), "user-1", []string{"m1", "m2", "m3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	tests := []struct {
		idx     int
		id      string
		success bool
	}{
		{0, "m1", true},
		{1, "m2", false},
		{2, "m3", true},
	}
	for _, tt := range tests {
		r := results[tt.idx]
		if r.MessageID != tt.id {
			t.Errorf("result %d: expected id %s, got %s", tt.idx, tt.id, r.MessageID)
		}
		if r.Success == nil || *r.Success != tt.success {
			t.Errorf("result %s: expected success=%v, got %+v", tt.id, tt.success, r.Success)
		}
	}
	if len(unsub.calls) != 3 {
		t.Errorf("one failure must not stop the rest, got %d calls", len(unsub.calls))
	}
}

func TestUnsubscribe_MissingLinkAndUnknownID(t *testing.T) {
	repo := &fakeMessageRepo{
		owned: map[string]*domain.Message{
			"m1": ownedMessage("m1", nil),
		},
	}
	unsub := &fakeUnsubscriber{}
	svc := NewService(repo, &fakeBodyStore{}, unsub)

	results, err := svc.Unsubscribe(context.Background(), "user-1", []string{"m1", "ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("every requested id needs a result, got %d", len(results))
	}

	if results[0].Success == nil || *results[0].Success {
		t.Errorf("message without link must fail: %+v", results[0])
	}
	if results[0].Message != "no unsubscribe link" {
		t.Errorf("unexpected message: %q", results[0].Message)
	}
	if results[1].Success == nil || *results[1].Success {
		t.Errorf("unknown id must fail: %+v", results[1])
	}
	if len(unsub.calls) != 0 {
		t.Errorf("no HTTP calls expected, got %v", unsub.calls)
	}
}
