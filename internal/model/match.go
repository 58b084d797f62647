package model

import "time"

// Match statuses.
const (
	MatchStatusPending   = "pending"
	MatchStatusAccepted  = "accepted"
	MatchStatusCompleted = "completed"
	MatchStatusCancelled = "cancelled"
)

// MatchOpen reports whether status still allows transitions.
func MatchOpen(status string) bool {
	return status == MatchStatusPending || status == MatchStatusAccepted
}

// StatusNewer reports whether next should replace current in a local view.
// Progress follows pending < accepted < completed; cancelled ends any open
// match; nothing replaces a terminal status.
func StatusNewer(current, next string) bool {
	rank := map[string]int{
		MatchStatusPending:   1,
		MatchStatusAccepted:  2,
		MatchStatusCompleted: 3,
	}
	if current == "" {
		return next != ""
	}
	if !MatchOpen(current) {
		return false
	}
	if next == MatchStatusCancelled {
		return true
	}
	return rank[next] > rank[current]
}

// MatchGroup pairs a requester trade group with a recipient trade group.
type MatchGroup struct {
	RequesterGroup int `json:"requester_group"`
	RecipientGroup int `json:"recipient_group"`
}

// Match is a proposed or executed trade between two participants.
type Match struct {
	ID           string       `json:"id"`
	EventID      string       `json:"event_id"`
	RequesterID  string       `json:"user1_id"`
	RecipientID  string       `json:"user2_id"`
	Status       string       `json:"status"`
	ColorCode    string       `json:"color_code,omitempty"`
	Groups       []MatchGroup `json:"groups"`
	CreatedAt    time.Time    `json:"matched_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	ReconciledAt *time.Time   `json:"reconciled_at,omitempty"`
}

// Involves reports whether participantID is one of the two parties.
func (m *Match) Involves(participantID string) bool {
	return m.RequesterID == participantID || m.RecipientID == participantID
}

// Counterparty returns the other party's id.
func (m *Match) Counterparty(participantID string) string {
	if m.RequesterID == participantID {
		return m.RecipientID
	}
	return m.RequesterID
}

// MaxMessageLength bounds a chat message body, in characters.
const MaxMessageLength = 500

// MatchMessage is a chat line attached to a match.
type MatchMessage struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// OfferedItem is a goods entry offered in a group match.
type OfferedItem struct {
	GoodsID  string `json:"goods_id"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
}

// GroupMatch is one pair of trade groups where each side offers something
// the other wants. TheyOffer and YouOffer are from the scanning side's view.
type GroupMatch struct {
	MyGroup        int           `json:"my_group"`
	TheirGroup     int           `json:"their_group"`
	TheyOffer      []OfferedItem `json:"they_offer"`
	YouOffer       []OfferedItem `json:"you_offer"`
	MyGiveCount    int           `json:"my_give_count"`
	MyWantQuantity int           `json:"my_want_quantity"`
	TheirGiveCount int           `json:"their_give_count"`
	TheirWantQty   int           `json:"their_want_quantity"`
}

// MatchResult is a counterparty found by a scan.
type MatchResult struct {
	ParticipantID string       `json:"participant_id"`
	Nickname      string       `json:"nickname"`
	Groups        []GroupMatch `json:"groups"`
	ColorCode     string       `json:"color_code"`
	Lat           *float64     `json:"lat,omitempty"`
	Lng           *float64     `json:"lng,omitempty"`
	Distance      int          `json:"distance"`
}
