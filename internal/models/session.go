// Package models defines the core data structures shared across carbot.
//
// It includes the conversation session, the per-funnel branch data, catalog
// vehicles and the inbound message envelope delivered by chat channels.
package models

import "time"

// StepType identifies a dialog engine state.
type StepType string

const (
	// StepIdle means no session exists for the conversation.
	StepIdle StepType = "idle"
	// StepAwaitingIntent is entered after the greeting or after a decline.
	StepAwaitingIntent          StepType = "awaiting_intent"
	StepAwaitingVehicle         StepType = "awaiting_vehicle_selection"
	StepAwaitingDownPayment     StepType = "awaiting_down_payment"
	StepAwaitingInstallments    StepType = "awaiting_installments"
	StepAwaitingIDNumber        StepType = "awaiting_id_number"
	StepAwaitingBirthDate       StepType = "awaiting_birth_date"
	StepAwaitingDocuments       StepType = "awaiting_documents"
	StepAwaitingEmployment      StepType = "awaiting_employment"
	StepAwaitingConfirmation    StepType = "awaiting_confirmation"
	StepAwaitingTradeModel      StepType = "awaiting_trade_model"
	StepAwaitingTradeYear       StepType = "awaiting_trade_year"
	StepAwaitingTradeCondition  StepType = "awaiting_trade_condition"
	StepAwaitingTradePhoto      StepType = "awaiting_trade_photo"
	StepAwaitingVisitDate       StepType = "awaiting_visit_date"
	StepAwaitingVisitTime       StepType = "awaiting_visit_time"
	StepAwaitingVisitName       StepType = "awaiting_visit_name"
	// StepCompleted is terminal; the session is deleted right after it is reached.
	StepCompleted StepType = "completed"
)

// Intent is the customer's top-level goal.
type Intent string

const (
	IntentNone    Intent = "none"
	IntentBuy     Intent = "buy"
	IntentFinance Intent = "finance"
	IntentSell    Intent = "sell"
	IntentTradeIn Intent = "trade_in"
	IntentConsign Intent = "consign"
	IntentVisit   Intent = "visit"

	// The following are produced by the classifier but never stored on a session.
	IntentDetails Intent = "details"
	IntentHuman   Intent = "human"
	IntentGreet   Intent = "greet"
)

// IsFunnel reports whether the intent opens a funnel branch.
func (i Intent) IsFunnel() bool {
	switch i {
	case IntentBuy, IntentFinance, IntentSell, IntentTradeIn, IntentConsign, IntentVisit:
		return true
	default:
		return false
	}
}

// Interest is an archived funnel attempt. The history is append-only.
type Interest struct {
	Intent  Intent    `json:"intent"`
	Vehicle string    `json:"vehicle,omitempty"`
	Step    StepType  `json:"step"`
	At      time.Time `json:"at"`
}

// Session is the mutable state tracked for one conversation.
type Session struct {
	ID              string
	Step            StepType
	Intent          Intent
	Branch          Branch
	Interests       []Interest
	ClientID        string
	CreatedAt       time.Time
	LastInteraction time.Time
}

// NewSession returns a session in the idle step.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:              id,
		Step:            StepIdle,
		Intent:          IntentNone,
		CreatedAt:       now,
		LastInteraction: now,
	}
}

// Clone returns a deep copy so callers can mutate without touching the stored value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Branch != nil {
		c.Branch = s.Branch.clone()
	}
	if s.Interests != nil {
		c.Interests = append([]Interest(nil), s.Interests...)
	}
	return &c
}

// Begin starts a new funnel branch, archiving any branch already active.
func (s *Session) Begin(b Branch, now time.Time) {
	if s.Branch != nil {
		s.Archive(now)
	}
	s.Intent = b.BranchIntent()
	s.Branch = b
}

// Archive moves the active branch into the interest history and clears the intent.
func (s *Session) Archive(now time.Time) {
	if s.Branch == nil && s.Intent == IntentNone {
		return
	}
	entry := Interest{Intent: s.Intent, Step: s.Step, At: now}
	if v := s.Vehicle(); v != nil {
		entry.Vehicle = v.Name
	}
	s.Interests = append(s.Interests, entry)
	s.Intent = IntentNone
	s.Branch = nil
}

// Vehicle returns the catalog vehicle selected by the active branch, if any.
func (s *Session) Vehicle() *Vehicle {
	switch b := s.Branch.(type) {
	case *PurchaseData:
		return b.Vehicle
	case *FinanceData:
		return b.Vehicle
	case *TradeInData:
		return b.Wanted
	default:
		return nil
	}
}
