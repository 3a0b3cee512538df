// Package database provides database connection management, migrations, and data
// access methods for the Votely application.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JavaBool/votely/internal/config"
	"github.com/JavaBool/votely/internal/database/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAlreadyVoted is returned by CastBallot when the elector's ballot has
// already been recorded, whether detected via the has_voted guard or the
// receipt uniqueness constraint.
var ErrAlreadyVoted = errors.New("elector has already voted")

// Database represents the database connection and operations
type Database struct {
	db     *sql.DB
	dbType string
}

// New creates a new database connection
func New(cfg *config.Config) (*Database, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.Database.SQLite.Path+"?_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// SQLite only allows one writer at a time
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		dbType: cfg.Database.Type,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// rebind converts `?` placeholders to `$n` for PostgreSQL. Queries are written
// once in SQLite style and rewritten here.
func (d *Database) rebind(query string) string {
	if d.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	var migrationFiles []string
	if d.dbType == "postgres" {
		migrationFiles = []string{
			"migrations/000001_init_schema.postgres.up.sql",
		}
	} else {
		migrationFiles = []string{
			"migrations/000001_init_schema.up.sql",
		}
	}

	for _, migrationFile := range migrationFiles {
		content, err := migrationsFS.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		// Remove comments and split into statements
		var statements []string
		lines := strings.Split(string(content), "\n")
		var currentStmt strings.Builder

		for _, line := range lines {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "--") || line == "" {
				continue
			}

			currentStmt.WriteString(line)
			currentStmt.WriteString("\n")

			if strings.HasSuffix(line, ";") {
				stmt := strings.TrimSpace(currentStmt.String())
				if stmt != "" {
					statements = append(statements, stmt)
				}
				currentStmt.Reset()
			}
		}

		for _, stmt := range statements {
			if _, err := d.db.Exec(stmt); err != nil {
				// Ignore "already exists" errors for idempotent migrations
				if !strings.Contains(err.Error(), "duplicate column") && !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("migration %s failed: %w\nStatement: %s", migrationFile, err, stmt)
				}
			}
		}
	}

	return nil
}

// Admin operations

// CreateAdmin creates a new admin account
func (d *Database) CreateAdmin(admin *models.Admin) error {
	query := d.rebind(`INSERT INTO admins
	          (id, username, email, password_hash, is_super_admin, force_change_password,
	           perm_manage_elections, perm_manage_electors, perm_manage_admins, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := d.db.Exec(query,
		admin.ID, admin.Username, admin.Email, admin.PasswordHash,
		admin.IsSuperAdmin, admin.ForceChangePassword,
		admin.PermManageElections, admin.PermManageElectors, admin.PermManageAdmins,
		admin.CreatedAt,
	)
	return err
}

const adminColumns = `id, username, email, password_hash, is_super_admin, force_change_password,
	perm_manage_elections, perm_manage_electors, perm_manage_admins, created_at`

func scanAdmin(row interface{ Scan(...any) error }) (*models.Admin, error) {
	var a models.Admin
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash,
		&a.IsSuperAdmin, &a.ForceChangePassword,
		&a.PermManageElections, &a.PermManageElectors, &a.PermManageAdmins,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAdmin retrieves an admin by ID
func (d *Database) GetAdmin(id string) (*models.Admin, error) {
	query := d.rebind(`SELECT ` + adminColumns + ` FROM admins WHERE id = ?`)
	return scanAdmin(d.db.QueryRow(query, id))
}

// GetAdminByLogin retrieves an admin by username, falling back to email.
// Username match wins when one admin's email collides with another's username.
func (d *Database) GetAdminByLogin(login string) (*models.Admin, error) {
	query := d.rebind(`SELECT ` + adminColumns + ` FROM admins WHERE username = ?`)
	a, err := scanAdmin(d.db.QueryRow(query, login))
	if err == sql.ErrNoRows {
		query = d.rebind(`SELECT ` + adminColumns + ` FROM admins WHERE email = ?`)
		return scanAdmin(d.db.QueryRow(query, login))
	}
	return a, err
}

// GetAdminByEmail retrieves an admin by email
func (d *Database) GetAdminByEmail(email string) (*models.Admin, error) {
	query := d.rebind(`SELECT ` + adminColumns + ` FROM admins WHERE email = ?`)
	return scanAdmin(d.db.QueryRow(query, email))
}

// ListAdmins retrieves all admins
func (d *Database) ListAdmins() ([]*models.Admin, error) {
	rows, err := d.db.Query(`SELECT ` + adminColumns + ` FROM admins ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*models.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// UpdateAdmin updates an admin's email and permission flags
func (d *Database) UpdateAdmin(admin *models.Admin) error {
	query := d.rebind(`UPDATE admins SET email = ?, perm_manage_elections = ?,
	          perm_manage_electors = ?, perm_manage_admins = ? WHERE id = ?`)
	_, err := d.db.Exec(query,
		admin.Email, admin.PermManageElections, admin.PermManageElectors,
		admin.PermManageAdmins, admin.ID,
	)
	return err
}

// UpdateAdminPassword sets a new password hash and the force-change flag
func (d *Database) UpdateAdminPassword(id, passwordHash string, forceChange bool) error {
	query := d.rebind(`UPDATE admins SET password_hash = ?, force_change_password = ? WHERE id = ?`)
	_, err := d.db.Exec(query, passwordHash, forceChange, id)
	return err
}

// DeleteAdmin deletes an admin by ID
func (d *Database) DeleteAdmin(id string) error {
	query := d.rebind(`DELETE FROM admins WHERE id = ?`)
	result, err := d.db.Exec(query, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountAdmins returns the number of admin accounts
func (d *Database) CountAdmins() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM admins`).Scan(&count)
	return count, err
}

// Election operations

const electionColumns = `id, title, description, nomination_start, nomination_end, start_time, end_time,
	config_age, min_age, config_photo, status, show_results, allow_nota, allow_phone_voting, created_at`

func scanElection(row interface{ Scan(...any) error }) (*models.Election, error) {
	var e models.Election
	err := row.Scan(
		&e.ID, &e.Title, &e.Description,
		&e.NominationStart, &e.NominationEnd, &e.StartTime, &e.EndTime,
		&e.ConfigAge, &e.MinAge, &e.ConfigPhoto,
		&e.Status, &e.ShowResults, &e.AllowNOTA, &e.AllowPhoneVoting,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateElection creates a new election
func (d *Database) CreateElection(e *models.Election) error {
	query := d.rebind(`INSERT INTO elections
	          (id, title, description, nomination_start, nomination_end, start_time, end_time,
	           config_age, min_age, config_photo, status, show_results, allow_nota,
	           allow_phone_voting, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := d.db.Exec(query,
		e.ID, e.Title, e.Description,
		e.NominationStart, e.NominationEnd, e.StartTime, e.EndTime,
		e.ConfigAge, e.MinAge, e.ConfigPhoto,
		e.Status, e.ShowResults, e.AllowNOTA, e.AllowPhoneVoting,
		e.CreatedAt,
	)
	return err
}

// GetElection retrieves an election by ID
func (d *Database) GetElection(id string) (*models.Election, error) {
	query := d.rebind(`SELECT ` + electionColumns + ` FROM elections WHERE id = ?`)
	return scanElection(d.db.QueryRow(query, id))
}

// ListElections retrieves all elections, newest voting window first
func (d *Database) ListElections() ([]*models.Election, error) {
	return d.queryElections(`SELECT ` + electionColumns + ` FROM elections ORDER BY start_time DESC`)
}

// ListPublicElections retrieves all non-draft elections
func (d *Database) ListPublicElections() ([]*models.Election, error) {
	return d.queryElections(`SELECT ` + electionColumns + ` FROM elections WHERE status != 'draft' ORDER BY start_time DESC`)
}

func (d *Database) queryElections(query string, args ...any) ([]*models.Election, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var elections []*models.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		elections = append(elections, e)
	}
	return elections, rows.Err()
}

// UpdateElection updates an election's editable fields and status flags
func (d *Database) UpdateElection(e *models.Election) error {
	query := d.rebind(`UPDATE elections SET title = ?, description = ?,
	          nomination_start = ?, nomination_end = ?, start_time = ?, end_time = ?,
	          config_age = ?, min_age = ?, config_photo = ?, status = ?, show_results = ?,
	          allow_nota = ?, allow_phone_voting = ? WHERE id = ?`)
	_, err := d.db.Exec(query,
		e.Title, e.Description,
		e.NominationStart, e.NominationEnd, e.StartTime, e.EndTime,
		e.ConfigAge, e.MinAge, e.ConfigPhoto,
		e.Status, e.ShowResults, e.AllowNOTA, e.AllowPhoneVoting,
		e.ID,
	)
	return err
}

// DeleteElection deletes an election; candidates, electors, votes and receipts
// cascade at the schema level.
func (d *Database) DeleteElection(id string) error {
	query := d.rebind(`DELETE FROM elections WHERE id = ?`)
	result, err := d.db.Exec(query, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteExpiredElections flips every active election whose end time has
// elapsed to completed and purges its ballot receipts, all in one transaction.
// It returns the IDs of the elections that were transitioned.
func (d *Database) CompleteExpiredElections(now time.Time) ([]string, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(d.rebind(`SELECT id FROM elections WHERE status = 'active' AND end_time <= ?`), now)
	if err != nil {
		return nil, err
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	for _, id := range expired {
		if _, err := tx.Exec(d.rebind(`UPDATE elections SET status = 'completed' WHERE id = ?`), id); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(d.rebind(`DELETE FROM ballot_receipts WHERE election_id = ?`), id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return expired, nil
}

// PurgeReceipts removes all ballot receipts for an election
func (d *Database) PurgeReceipts(electionID string) error {
	_, err := d.db.Exec(d.rebind(`DELETE FROM ballot_receipts WHERE election_id = ?`), electionID)
	return err
}

// Candidate operations

const candidateColumns = `id, election_id, name, email, age, photo_path, status`

func scanCandidate(row interface{ Scan(...any) error }) (*models.Candidate, error) {
	var c models.Candidate
	err := row.Scan(&c.ID, &c.ElectionID, &c.Name, &c.Email, &c.Age, &c.PhotoPath, &c.Status)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCandidate creates a new candidate
func (d *Database) CreateCandidate(c *models.Candidate) error {
	query := d.rebind(`INSERT INTO candidates (id, election_id, name, email, age, photo_path, status)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := d.db.Exec(query, c.ID, c.ElectionID, c.Name, c.Email, c.Age, c.PhotoPath, c.Status)
	return err
}

// GetCandidate retrieves a candidate by ID
func (d *Database) GetCandidate(id string) (*models.Candidate, error) {
	query := d.rebind(`SELECT ` + candidateColumns + ` FROM candidates WHERE id = ?`)
	return scanCandidate(d.db.QueryRow(query, id))
}

// GetCandidateByEmail retrieves a candidate by election and email
func (d *Database) GetCandidateByEmail(electionID, email string) (*models.Candidate, error) {
	query := d.rebind(`SELECT ` + candidateColumns + ` FROM candidates WHERE election_id = ? AND email = ?`)
	return scanCandidate(d.db.QueryRow(query, electionID, email))
}

// GetNOTACandidate retrieves the synthetic NOTA candidate for an election
func (d *Database) GetNOTACandidate(electionID string) (*models.Candidate, error) {
	query := d.rebind(`SELECT ` + candidateColumns + ` FROM candidates WHERE election_id = ? AND status = 'nota'`)
	return scanCandidate(d.db.QueryRow(query, electionID))
}

// ListCandidates retrieves candidates for an election, optionally filtered by status
func (d *Database) ListCandidates(electionID string, statuses ...models.CandidateStatus) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE election_id = ?`
	args := []any{electionID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY name`

	rows, err := d.db.Query(d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// UpdateCandidateStatus sets a candidate's status
func (d *Database) UpdateCandidateStatus(id string, status models.CandidateStatus) error {
	query := d.rebind(`UPDATE candidates SET status = ? WHERE id = ?`)
	result, err := d.db.Exec(query, status, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCandidate deletes a candidate by ID
func (d *Database) DeleteCandidate(id string) error {
	query := d.rebind(`DELETE FROM candidates WHERE id = ?`)
	_, err := d.db.Exec(query, id)
	return err
}

// Elector operations

const electorColumns = `id, election_id, name, phone, email, secret_code, status, has_voted, custom_success_msg`

func scanElector(row interface{ Scan(...any) error }) (*models.Elector, error) {
	var e models.Elector
	err := row.Scan(&e.ID, &e.ElectionID, &e.Name, &e.Phone, &e.Email,
		&e.SecretCode, &e.Status, &e.HasVoted, &e.CustomSuccessMsg)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateElector creates a new elector
func (d *Database) CreateElector(e *models.Elector) error {
	query := d.rebind(`INSERT INTO electors
	          (id, election_id, name, phone, email, secret_code, status, has_voted, custom_success_msg)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := d.db.Exec(query,
		e.ID, e.ElectionID, e.Name, e.Phone, e.Email,
		e.SecretCode, e.Status, e.HasVoted, e.CustomSuccessMsg,
	)
	return err
}

// GetElector retrieves an elector by ID
func (d *Database) GetElector(id string) (*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors WHERE id = ?`)
	return scanElector(d.db.QueryRow(query, id))
}

// GetElectorByPhone retrieves an elector by election and phone number
func (d *Database) GetElectorByPhone(electionID, phone string) (*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors WHERE election_id = ? AND phone = ?`)
	return scanElector(d.db.QueryRow(query, electionID, phone))
}

// GetElectorByEmail retrieves an elector by election and email
func (d *Database) GetElectorByEmail(electionID, email string) (*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors WHERE election_id = ? AND email = ?`)
	return scanElector(d.db.QueryRow(query, electionID, email))
}

// GetElectorByPhoneNameCode performs the exact-match secret-code lookup via the
// phone branch. Name is a required co-factor, not just a display field.
func (d *Database) GetElectorByPhoneNameCode(electionID, phone, name, code string) (*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors
	          WHERE election_id = ? AND phone = ? AND name = ? AND secret_code = ?`)
	return scanElector(d.db.QueryRow(query, electionID, phone, name, code))
}

// GetElectorByEmailNameCode performs the exact-match secret-code lookup via the
// email branch.
func (d *Database) GetElectorByEmailNameCode(electionID, email, name, code string) (*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors
	          WHERE election_id = ? AND email = ? AND name = ? AND secret_code = ?`)
	return scanElector(d.db.QueryRow(query, electionID, email, name, code))
}

// ListElectors retrieves all electors for an election
func (d *Database) ListElectors(electionID string) ([]*models.Elector, error) {
	query := d.rebind(`SELECT ` + electorColumns + ` FROM electors WHERE election_id = ? ORDER BY name`)
	rows, err := d.db.Query(query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var electors []*models.Elector
	for rows.Next() {
		e, err := scanElector(rows)
		if err != nil {
			return nil, err
		}
		electors = append(electors, e)
	}
	return electors, rows.Err()
}

// UpdateElector updates an elector's identity fields and custom message
func (d *Database) UpdateElector(e *models.Elector) error {
	query := d.rebind(`UPDATE electors SET name = ?, phone = ?, email = ?, custom_success_msg = ? WHERE id = ?`)
	_, err := d.db.Exec(query, e.Name, e.Phone, e.Email, e.CustomSuccessMsg, e.ID)
	return err
}

// UpdateElectorStatus sets an elector's roll status
func (d *Database) UpdateElectorStatus(id string, status models.ElectorStatus) error {
	query := d.rebind(`UPDATE electors SET status = ? WHERE id = ?`)
	result, err := d.db.Exec(query, status, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateElectorSecretCode sets a single elector's secret code
func (d *Database) UpdateElectorSecretCode(id, code string) error {
	query := d.rebind(`UPDATE electors SET secret_code = ? WHERE id = ?`)
	_, err := d.db.Exec(query, code, id)
	return err
}

// ResetAllSecretCodes regenerates the secret code of every elector in an
// election using the supplied generator. Returns the number of electors
// updated. All updates commit together.
func (d *Database) ResetAllSecretCodes(electionID string, gen func() string) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(d.rebind(`SELECT id FROM electors WHERE election_id = ?`), electionID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	update := d.rebind(`UPDATE electors SET secret_code = ? WHERE id = ?`)
	for _, id := range ids {
		if _, err := tx.Exec(update, gen(), id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteElector removes an elector. If a ballot receipt still exists for the
// elector (voting window open), the linked vote is removed in the same
// transaction so tallies do not count departed voters.
func (d *Database) DeleteElector(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var voteID string
	err = tx.QueryRow(d.rebind(`SELECT vote_id FROM ballot_receipts WHERE elector_id = ?`), id).Scan(&voteID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil {
		if _, err := tx.Exec(d.rebind(`DELETE FROM votes WHERE id = ?`), voteID); err != nil {
			return err
		}
	}

	result, err := tx.Exec(d.rebind(`DELETE FROM electors WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// PurgeRejectedElectors deletes rejected electors that never voted, across
// all elections. Rejected rows with has_voted set are an anomaly and are left
// in place; the count of such rows is returned alongside the deleted count.
func (d *Database) PurgeRejectedElectors() (deleted, anomalies int, err error) {
	query := d.rebind(`SELECT COUNT(*) FROM electors WHERE status = ? AND has_voted = 1`)
	if err := d.db.QueryRow(query, models.ElectorRejected).Scan(&anomalies); err != nil {
		return 0, 0, err
	}

	result, err := d.db.Exec(d.rebind(`DELETE FROM electors WHERE status = ? AND has_voted = 0`), models.ElectorRejected)
	if err != nil {
		return 0, anomalies, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, anomalies, err
	}
	return int(n), anomalies, nil
}

// Vote operations

// CastBallot records a ballot in a single transaction: the elector's has_voted
// flag is flipped with a guarded conditional update, the anonymous vote row is
// inserted, and a receipt pins the (election, elector) pair. Either all three
// take effect or none do. A lost race surfaces as ErrAlreadyVoted.
func (d *Database) CastBallot(vote *models.Vote, electorID string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		d.rebind(`UPDATE electors SET has_voted = ? WHERE id = ? AND has_voted = ?`),
		true, electorID, false,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyVoted
	}

	_, err = tx.Exec(
		d.rebind(`INSERT INTO votes (id, election_id, candidate_id, created_at) VALUES (?, ?, ?, ?)`),
		vote.ID, vote.ElectionID, vote.CandidateID, vote.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		d.rebind(`INSERT INTO ballot_receipts (election_id, elector_id, vote_id, created_at) VALUES (?, ?, ?, ?)`),
		vote.ElectionID, electorID, vote.ID, vote.CreatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return ErrAlreadyVoted
		}
		return err
	}

	return tx.Commit()
}

// ResetVote deletes the elector's vote located via its ballot receipt and
// clears has_voted, in one transaction. Returns sql.ErrNoRows when no receipt
// exists (nothing to reset, or the linkage has already been purged).
func (d *Database) ResetVote(electionID, electorID string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var voteID string
	err = tx.QueryRow(
		d.rebind(`SELECT vote_id FROM ballot_receipts WHERE election_id = ? AND elector_id = ?`),
		electionID, electorID,
	).Scan(&voteID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(d.rebind(`DELETE FROM votes WHERE id = ?`), voteID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		d.rebind(`DELETE FROM ballot_receipts WHERE election_id = ? AND elector_id = ?`),
		electionID, electorID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		d.rebind(`UPDATE electors SET has_voted = ? WHERE id = ?`),
		false, electorID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ListVotes retrieves all votes for an election
func (d *Database) ListVotes(electionID string) ([]*models.Vote, error) {
	query := d.rebind(`SELECT id, election_id, candidate_id, created_at FROM votes WHERE election_id = ?`)
	rows, err := d.db.Query(query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.ElectionID, &v.CandidateID, &v.CreatedAt); err != nil {
			return nil, err
		}
		votes = append(votes, &v)
	}
	return votes, rows.Err()
}

// CountVotes returns the total number of votes cast in an election
func (d *Database) CountVotes(electionID string) (int, error) {
	var count int
	err := d.db.QueryRow(d.rebind(`SELECT COUNT(*) FROM votes WHERE election_id = ?`), electionID).Scan(&count)
	return count, err
}

// CandidateTally pairs a candidate with their vote count.
type CandidateTally struct {
	Candidate *models.Candidate `json:"candidate"`
	Votes     int               `json:"votes"`
}

// TallyVotes returns per-candidate vote counts for the approved and NOTA
// candidates of an election, highest count first.
func (d *Database) TallyVotes(electionID string) ([]*CandidateTally, error) {
	query := d.rebind(`SELECT c.id, c.election_id, c.name, c.email, c.age, c.photo_path, c.status, COUNT(v.id)
	          FROM candidates c
	          LEFT JOIN votes v ON v.candidate_id = c.id
	          WHERE c.election_id = ? AND c.status IN ('approved', 'nota')
	          GROUP BY c.id, c.election_id, c.name, c.email, c.age, c.photo_path, c.status
	          ORDER BY COUNT(v.id) DESC, c.name`)

	rows, err := d.db.Query(query, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tallies []*CandidateTally
	for rows.Next() {
		var c models.Candidate
		var count int
		err := rows.Scan(&c.ID, &c.ElectionID, &c.Name, &c.Email, &c.Age, &c.PhotoPath, &c.Status, &count)
		if err != nil {
			return nil, err
		}
		tallies = append(tallies, &CandidateTally{Candidate: &c, Votes: count})
	}
	return tallies, rows.Err()
}

// CountElectors returns the number of electors in an election with the given status
func (d *Database) CountElectors(electionID string, status models.ElectorStatus) (int, error) {
	var count int
	err := d.db.QueryRow(
		d.rebind(`SELECT COUNT(*) FROM electors WHERE election_id = ? AND status = ?`),
		electionID, status,
	).Scan(&count)
	return count, err
}

// CountVoted returns the number of electors who have voted in an election
func (d *Database) CountVoted(electionID string) (int, error) {
	var count int
	err := d.db.QueryRow(
		d.rebind(`SELECT COUNT(*) FROM electors WHERE election_id = ? AND has_voted = ?`),
		electionID, true,
	).Scan(&count)
	return count, err
}

// System config operations

// SetSystemConfig sets a system configuration value
func (d *Database) SetSystemConfig(key, value string) error {
	query := `INSERT OR REPLACE INTO system_config (key, value, updated_at) VALUES (?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO system_config (key, value, updated_at)
		         VALUES ($1, $2, $3)
		         ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`
	}

	_, err := d.db.Exec(query, key, value, time.Now())
	return err
}

// GetSystemConfig retrieves a system configuration value
func (d *Database) GetSystemConfig(key string) (string, error) {
	query := d.rebind(`SELECT value FROM system_config WHERE key = ?`)
	var value string
	err := d.db.QueryRow(query, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}
