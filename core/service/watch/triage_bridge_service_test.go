package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage_server/config"
	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type fakeAccountRepo struct {
	byEmail       map[string]*domain.Account
	byID          map[string]*domain.Account
	cursorUpdates map[string]string
	watchUpdates  map[string]string
	expiring      []*domain.Account
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if acct, ok := f.byID[id]; ok {
		return acct, nil
	}
	return nil, out.ErrNotFound
}

func (f *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if acct, ok := f.byEmail[email]; ok {
		return acct, nil
	}
	return nil, out.ErrNotFound
}

func (f *fakeAccountRepo) UpdateCursor(ctx context.Context, id, cursor string) error {
	if f.cursorUpdates == nil {
		f.cursorUpdates = make(map[string]string)
	}
	f.cursorUpdates[id] = cursor
	return nil
}

func (f *fakeAccountRepo) UpdateWatch(ctx context.Context, id, cursor string, expiration time.Time) error {
	if f.watchUpdates == nil {
		f.watchUpdates = make(map[string]string)
	}
	f.watchUpdates[id] = cursor
	return nil
}

func (f *fakeAccountRepo) ListWatchExpiring(ctx context.Context, deadline time.Time) ([]*domain.Account, error) {
	return f.expiring, nil
}

type fakeProducer struct {
	imports    []domain.ImportOptions
	publishErr error
}

func (f *fakeProducer) PublishImport(ctx context.Context, opts domain.ImportOptions) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.imports = append(f.imports, opts)
	return nil
}

func (f *fakeProducer) PublishBulkDelete(ctx context.Context, userID string, messageIDs []string) error {
	return nil
}

func (f *fakeProducer) PublishBulkUnsubscribe(ctx context.Context, userID string, messageIDs []string) error {
	return nil
}

func (f *fakeProducer) PublishWatchRenew(ctx context.Context, accountID string) error { return nil }

func notif(email, historyID string) *domain.ChangeNotification {
	return &domain.ChangeNotification{EmailAddress: email, HistoryID: historyID}
}

// =============================================================================
// HandleNotification
// =============================================================================

func TestHandleNotification_FreshCursorTriggersImport(t *testing.T) {
	repo := &fakeAccountRepo{
		byEmail: map[string]*domain.Account{
			"me@example.com": {ID: "acct-1", Email: "me@example.com", HistoryCursor: "100"},
		},
	}
	producer := &fakeProducer{}
	bridge := NewBridge(repo, producer, config.CursorCompareNumeric, true)

	outcome, err := bridge.HandleNotification(context.Background(), notif("me@example.com", "150"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.BridgeTriggered {
		t.Errorf("expected triggered, got %s", outcome)
	}
	if repo.cursorUpdates["acct-1"] != "150" {
		t.Errorf("cursor not advanced: %v", repo.cursorUpdates)
	}
	if len(producer.imports) != 1 || producer.imports[0].AccountID != "acct-1" {
		t.Errorf("expected one import job for acct-1, got %v", producer.imports)
	}
	if !producer.imports[0].AutoArchive {
		t.Error("auto archive flag not carried into the job")
	}
}

func TestHandleNotification_StaleCursorIsIgnoredWithoutMutation(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		stored   string
	}{
		{"older", "90", "100"},
		{"equal", "100", "100"},
		{"numerically smaller but lexically larger", "99", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeAccountRepo{
				byEmail: map[string]*domain.Account{
					"me@example.com": {ID: "acct-1", Email: "me@example.com", HistoryCursor: tt.stored},
				},
			}
			producer := &fakeProducer{}
			bridge := NewBridge(repo, producer, config.CursorCompareNumeric, false)

			outcome, err := bridge.HandleNotification(context.Background(), notif("me@example.com", tt.incoming))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != domain.BridgeStaleCursor {
				t.Errorf("expected stale cursor, got %s", outcome)
			}
			if len(repo.cursorUpdates) != 0 {
				t.Errorf("stale notification must not move the cursor: %v", repo.cursorUpdates)
			}
			if len(producer.imports) != 0 {
				t.Errorf("stale notification must not enqueue imports: %v", producer.imports)
			}
		})
	}
}

func TestHandleNotification_UnknownAccountIsQuiet(t *testing.T) {
	repo := &fakeAccountRepo{byEmail: map[string]*domain.Account{}}
	producer := &fakeProducer{}
	bridge := NewBridge(repo, producer, config.CursorCompareNumeric, false)

	outcome, err := bridge.HandleNotification(context.Background(), notif("stranger@example.com", "5"))
	if err != nil {
		t.Fatalf("unknown account must not error: %v", err)
	}
	if outcome != domain.BridgeUnknownAccount {
		t.Errorf("expected unknown account, got %s", outcome)
	}
	if len(producer.imports) != 0 {
		t.Error("no import may be enqueued for an unknown mailbox")
	}
}

func TestHandleNotification_PublishFailureReportsFailed(t *testing.T) {
	repo := &fakeAccountRepo{
		byEmail: map[string]*domain.Account{
			"me@example.com": {ID: "acct-1", Email: "me@example.com", HistoryCursor: "10"},
		},
	}
	producer := &fakeProducer{publishErr: errors.New("redis down")}
	bridge := NewBridge(repo, producer, config.CursorCompareNumeric, false)

	outcome, err := bridge.HandleNotification(context.Background(), notif("me@example.com", "20"))
	if err == nil {
		t.Fatal("expected error when publish fails")
	}
	if outcome != domain.BridgeFailed {
		t.Errorf("expected failed outcome, got %s", outcome)
	}
}

func TestHandleNotification_EmptyStoredCursorAlwaysTriggers(t *testing.T) {
	repo := &fakeAccountRepo{
		byEmail: map[string]*domain.Account{
			"me@example.com": {ID: "acct-1", Email: "me@example.com", HistoryCursor: ""},
		},
	}
	producer := &fakeProducer{}
	bridge := NewBridge(repo, producer, config.CursorCompareNumeric, false)

	outcome, err := bridge.HandleNotification(context.Background(), notif("me@example.com", "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.BridgeTriggered {
		t.Errorf("first notification must trigger, got %s", outcome)
	}
}

// =============================================================================
// Cursor Comparison Modes
// =============================================================================

func TestCursorAdvanced_Modes(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		incoming string
		stored   string
		want     bool
	}{
		{"numeric larger", config.CursorCompareNumeric, "200", "100", true},
		{"numeric smaller", config.CursorCompareNumeric, "100", "200", false},
		{"numeric equal", config.CursorCompareNumeric, "100", "100", false},
		{"numeric wider digits", config.CursorCompareNumeric, "1000", "999", true},
		{"numeric falls back on garbage", config.CursorCompareNumeric, "abc", "abb", true},
		{"string larger", config.CursorCompareString, "b", "a", true},
		{"string digit trap", config.CursorCompareString, "1000", "999", false},
		{"empty stored", config.CursorCompareString, "x", "", true},
		{"empty incoming", config.CursorCompareNumeric, "", "5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBridge(nil, nil, tt.mode, false)
			if got := b.cursorAdvanced(tt.incoming, tt.stored); got != tt.want {
				t.Errorf("cursorAdvanced(%q, %q) mode=%s: got %v, want %v",
					tt.incoming, tt.stored, tt.mode, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Renewer
// =============================================================================

type fakeMailSource struct {
	watchInfo map[string]*domain.WatchInfo
	renewErr  map[string]error
}

func (f *fakeMailSource) ListCandidates(ctx context.Context, account *domain.Account, query string, maxResults int) ([]out.CandidateRef, error) {
	return nil, nil
}

func (f *fakeMailSource) FetchFull(ctx context.Context, account *domain.Account, messageID string) (*out.SourceMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMailSource) Archive(ctx context.Context, account *domain.Account, messageID string) error {
	return nil
}

func (f *fakeMailSource) RenewWatch(ctx context.Context, account *domain.Account) (*domain.WatchInfo, error) {
	if err, ok := f.renewErr[account.ID]; ok {
		return nil, err
	}
	return f.watchInfo[account.ID], nil
}

func TestRenewExpiring_PerAccountIsolation(t *testing.T) {
	exp := time.Now().Add(7 * 24 * time.Hour)
	accounts := []*domain.Account{
		{ID: "acct-1", Email: "a@example.com"},
		{ID: "acct-2", Email: "b@example.com"},
		{ID: "acct-3", Email: "c@example.com"},
	}
	repo := &fakeAccountRepo{
		byID: map[string]*domain.Account{
			"acct-1": accounts[0], "acct-2": accounts[1], "acct-3": accounts[2],
		},
		expiring: accounts,
	}
	src := &fakeMailSource{
		watchInfo: map[string]*domain.WatchInfo{
			"acct-1": {Cursor: "500", Expiration: exp},
			"acct-3": {Cursor: "700", Expiration: exp},
		},
		renewErr: map[string]error{"acct-2": errors.New("token revoked")},
	}
	renewer := NewRenewer(repo, src, 24*time.Hour)

	renewed, err := renewer.RenewExpiring(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renewed != 2 {
		t.Errorf("expected 2 renewed, got %d", renewed)
	}
	if repo.watchUpdates["acct-1"] != "500" || repo.watchUpdates["acct-3"] != "700" {
		t.Errorf("watch updates missing: %v", repo.watchUpdates)
	}
	if _, ok := repo.watchUpdates["acct-2"]; ok {
		t.Error("failed renewal must not write a watch update")
	}
}
