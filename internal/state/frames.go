package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// ErrNotFound is returned when a frame does not exist.
var ErrNotFound = errors.New("not found")

// Frame is the audit record of one swarm run.
type Frame struct {
	ID          string             `json:"id"`
	SwarmID     string             `json:"swarm_id"`
	Description string             `json:"description"`
	Status      models.SwarmStatus `json:"status"`
	Agents      int                `json:"agents"`
	Tasks       int                `json:"tasks"`
	Completed   int                `json:"completed"`
	Failed      int                `json:"failed"`
	Unallocated int                `json:"unallocated"`
	Summary     string             `json:"summary"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     *time.Time         `json:"ended_at"`
}

// FrameOutcome carries the final counters written by CloseFrame.
type FrameOutcome struct {
	Status      models.SwarmStatus
	Completed   int
	Failed      int
	Unallocated int
	Summary     string
}

// CreateFrame inserts f. An empty ID is filled with a new uuid and a zero
// StartedAt with the current time.
func (db *DB) CreateFrame(f *Frame) error {
	if f.ID == "" {
		f.ID = "frame-" + uuid.New().String()[:8]
	}
	if f.StartedAt.IsZero() {
		f.StartedAt = time.Now()
	}
	if f.Status == "" {
		f.Status = models.SwarmStatusActive
	}
	_, err := db.Exec(`
		INSERT INTO frames (id, swarm_id, description, status, agents, tasks, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.SwarmID, f.Description, string(f.Status), f.Agents, f.Tasks, formatTime(f.StartedAt))
	if err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

// CloseFrame records the outcome of a run and stamps its end time.
func (db *DB) CloseFrame(id string, out FrameOutcome) error {
	res, err := db.Exec(`
		UPDATE frames
		SET status = ?, completed = ?, failed = ?, unallocated = ?, summary = ?, ended_at = ?
		WHERE id = ?
	`, string(out.Status), out.Completed, out.Failed, out.Unallocated, out.Summary, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("close frame: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close frame %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetFrame returns the frame with id.
func (db *DB) GetFrame(id string) (*Frame, error) {
	row := db.QueryRow(`
		SELECT id, swarm_id, description, status, agents, tasks, completed, failed,
		       unallocated, summary, started_at, ended_at
		FROM frames WHERE id = ?
	`, id)
	f, err := scanFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("frame %s: %w", id, ErrNotFound)
	}
	return f, err
}

// ListFrames returns up to limit frames, newest first. limit <= 0 means all.
func (db *DB) ListFrames(limit int) ([]Frame, error) {
	query := `
		SELECT id, swarm_id, description, status, agents, tasks, completed, failed,
		       unallocated, summary, started_at, ended_at
		FROM frames ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, *f)
	}
	return frames, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFrame(s scanner) (*Frame, error) {
	var (
		f       Frame
		status  string
		summary sql.NullString
		started string
		ended   sql.NullString
	)
	if err := s.Scan(&f.ID, &f.SwarmID, &f.Description, &status, &f.Agents, &f.Tasks,
		&f.Completed, &f.Failed, &f.Unallocated, &summary, &started, &ended); err != nil {
		return nil, err
	}
	f.Status = models.SwarmStatus(status)
	f.Summary = summary.String
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	f.StartedAt = t
	f.EndedAt = parseNullableTime(ended)
	return &f, nil
}

// AppendEvent journals one coordination event for swarmID. Re-appending a
// sequence number already stored is a no-op.
func (db *DB) AppendEvent(swarmID string, ev models.CoordinationEvent) error {
	var data []byte
	if len(ev.Data) > 0 {
		var err error
		if data, err = json.Marshal(ev.Data); err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
	}
	_, err := db.Exec(`
		INSERT OR IGNORE INTO events (swarm_id, seq, type, agent_id, task_id, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, swarmID, ev.Seq, string(ev.Type), ev.AgentID, ev.TaskID, ev.Message, string(data), formatTime(ev.Time))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns the journal for swarmID in sequence order.
func (db *DB) ListEvents(swarmID string) ([]models.CoordinationEvent, error) {
	rows, err := db.Query(`
		SELECT seq, type, agent_id, task_id, message, data, created_at
		FROM events WHERE swarm_id = ? ORDER BY seq
	`, swarmID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.CoordinationEvent
	for rows.Next() {
		var (
			ev                       models.CoordinationEvent
			typ                      string
			agentID, taskID, message sql.NullString
			data                     sql.NullString
			created                  string
		)
		if err := rows.Scan(&ev.Seq, &typ, &agentID, &taskID, &message, &data, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = models.EventType(typ)
		ev.AgentID = agentID.String
		ev.TaskID = taskID.String
		ev.Message = message.String
		if data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		if ev.Time, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
