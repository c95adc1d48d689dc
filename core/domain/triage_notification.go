package domain

// ChangeNotification is the decoded payload of a provider push
// notification: the mailbox address and the new change cursor.
type ChangeNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    string `json:"historyId"`
}

// BridgeOutcome describes what the notification bridge did with one
// notification. The HTTP layer always acknowledges regardless of outcome;
// this is internal bookkeeping only.
type BridgeOutcome string

const (
	BridgeTriggered      BridgeOutcome = "triggered"
	BridgeStaleCursor    BridgeOutcome = "stale_cursor"
	BridgeUnknownAccount BridgeOutcome = "unknown_account"
	BridgeDuplicate      BridgeOutcome = "duplicate"
	BridgeFailed         BridgeOutcome = "failed"
)
