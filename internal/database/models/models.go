// Package models defines the data structures for database entities in Votely.
// It includes models for admins, elections, candidates, electors, votes, ballot
// receipts, and system configuration, representing the core data model for the
// application.
package models

import (
	"database/sql"
	"time"
)

// ElectionStatus is the lifecycle state of an election.
type ElectionStatus string

const (
	ElectionDraft     ElectionStatus = "draft"
	ElectionActive    ElectionStatus = "active"
	ElectionCompleted ElectionStatus = "completed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s ElectionStatus) Valid() bool {
	switch s {
	case ElectionDraft, ElectionActive, ElectionCompleted:
		return true
	}
	return false
}

// CandidateStatus is the nomination state of a candidate. CandidateNOTA marks
// the synthetic "None of the Above" row managed alongside the election's
// allow_nota flag.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateApproved CandidateStatus = "approved"
	CandidateRejected CandidateStatus = "rejected"
	CandidateNOTA     CandidateStatus = "nota"
)

// Valid reports whether the status is a known candidate state.
func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidatePending, CandidateApproved, CandidateRejected, CandidateNOTA:
		return true
	}
	return false
}

// ElectorStatus is the roll-membership state of an elector.
type ElectorStatus string

const (
	ElectorApproved ElectorStatus = "approved"
	ElectorPending  ElectorStatus = "pending"
	ElectorRejected ElectorStatus = "rejected"
)

// Valid reports whether the status is a known elector state.
func (s ElectorStatus) Valid() bool {
	switch s {
	case ElectorApproved, ElectorPending, ElectorRejected:
		return true
	}
	return false
}

// Field requirement tiers for candidate age and photo.
const (
	FieldHidden   = 0
	FieldOptional = 1
	FieldRequired = 2
)

// Admin represents an administrator account
type Admin struct {
	ID                  string    `db:"id" json:"id"`
	Username            string    `db:"username" json:"username"`
	Email               string    `db:"email" json:"email"`
	PasswordHash        string    `db:"password_hash" json:"-"`
	IsSuperAdmin        bool      `db:"is_super_admin" json:"is_super_admin"`
	ForceChangePassword bool      `db:"force_change_password" json:"force_change_password"`
	PermManageElections bool      `db:"perm_manage_elections" json:"perm_manage_elections"`
	PermManageElectors  bool      `db:"perm_manage_electors" json:"perm_manage_electors"`
	PermManageAdmins    bool      `db:"perm_manage_admins" json:"perm_manage_admins"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// CanManageElections reports whether the admin may manage elections.
// Super admins hold every permission.
func (a *Admin) CanManageElections() bool {
	return a.IsSuperAdmin || a.PermManageElections
}

// CanManageElectors reports whether the admin may manage elector rolls.
func (a *Admin) CanManageElectors() bool {
	return a.IsSuperAdmin || a.PermManageElectors
}

// CanManageAdmins reports whether the admin may manage other admins.
func (a *Admin) CanManageAdmins() bool {
	return a.IsSuperAdmin || a.PermManageAdmins
}

// Election represents a single election with its scheduling windows and
// configuration flags. Candidates, electors and votes cascade on delete.
type Election struct {
	ID               string         `db:"id" json:"id"`
	Title            string         `db:"title" json:"title"`
	Description      string         `db:"description" json:"description"`
	NominationStart  time.Time      `db:"nomination_start" json:"nomination_start"`
	NominationEnd    time.Time      `db:"nomination_end" json:"nomination_end"`
	StartTime        time.Time      `db:"start_time" json:"start_time"`
	EndTime          time.Time      `db:"end_time" json:"end_time"`
	ConfigAge        int            `db:"config_age" json:"config_age"`
	MinAge           int            `db:"min_age" json:"min_age"`
	ConfigPhoto      int            `db:"config_photo" json:"config_photo"`
	Status           ElectionStatus `db:"status" json:"status"`
	ShowResults      bool           `db:"show_results" json:"show_results"`
	AllowNOTA        bool           `db:"allow_nota" json:"allow_nota"`
	AllowPhoneVoting bool           `db:"allow_phone_voting" json:"allow_phone_voting"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// NominationOpen reports whether nominations are accepted at the given instant.
func (e *Election) NominationOpen(now time.Time) bool {
	return !now.Before(e.NominationStart) && !now.After(e.NominationEnd)
}

// VotingOpen reports whether ballots are accepted at the given instant.
func (e *Election) VotingOpen(now time.Time) bool {
	return e.Status == ElectionActive && !now.Before(e.StartTime) && !now.After(e.EndTime)
}

// ResultsVisible reports whether results may be shown publicly.
func (e *Election) ResultsVisible(now time.Time) bool {
	return e.ShowResults && now.After(e.EndTime)
}

// Candidate represents a (possibly synthetic NOTA) candidate in one election
type Candidate struct {
	ID         string          `db:"id" json:"id"`
	ElectionID string          `db:"election_id" json:"election_id"`
	Name       string          `db:"name" json:"name"`
	Email      sql.NullString  `db:"email" json:"email"`
	Age        sql.NullInt64   `db:"age" json:"age"`
	PhotoPath  sql.NullString  `db:"photo_path" json:"photo_path"`
	Status     CandidateStatus `db:"status" json:"status"`
}

// Elector represents a registered voter for one election. Phone and email are
// each unique within the election; at least one must be set.
type Elector struct {
	ID               string         `db:"id" json:"id"`
	ElectionID       string         `db:"election_id" json:"election_id"`
	Name             string         `db:"name" json:"name"`
	Phone            sql.NullString `db:"phone" json:"phone"`
	Email            sql.NullString `db:"email" json:"email"`
	SecretCode       string         `db:"secret_code" json:"-"`
	Status           ElectorStatus  `db:"status" json:"status"`
	HasVoted         bool           `db:"has_voted" json:"has_voted"`
	CustomSuccessMsg sql.NullString `db:"custom_success_msg" json:"-"`
}

// Vote represents an anonymized cast ballot. It references the election and
// the chosen candidate only; there is deliberately no elector column.
type Vote struct {
	ID          string         `db:"id" json:"id"`
	ElectionID  string         `db:"election_id" json:"election_id"`
	CandidateID sql.NullString `db:"candidate_id" json:"candidate_id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// BallotReceipt links an elector to their vote while voting is still open so
// that an admin-initiated vote reset can locate the row to delete, and so the
// unique (election, elector) pair makes double insertion impossible. Receipts
// are purged the moment an election completes; after that no join from votes
// back to electors exists.
type BallotReceipt struct {
	ElectionID string    `db:"election_id"`
	ElectorID  string    `db:"elector_id"`
	VoteID     string    `db:"vote_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// SystemConfig represents system-wide configuration stored in the database
type SystemConfig struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
