package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// recentCapacity bounds the in-memory window used when no database backs
// the logger.
const recentCapacity = 1000

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  DATETIME NOT NULL,
    level      TEXT NOT NULL,
    user_id    TEXT,
    role       TEXT,
    action     TEXT NOT NULL,
    resource   TEXT NOT NULL,
    ip_address TEXT,
    success    BOOLEAN NOT NULL,
    error_msg  TEXT,
    metadata   TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_user_role ON audit_log(user_id, role);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
`

const insertEvent = `
INSERT INTO audit_log (timestamp, level, user_id, role, action, resource, ip_address, success, error_msg, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Logger records audit events to a JSON lines file and, when a database is
// configured, to the audit_log table.
type Logger struct {
	db         *sql.DB
	logFile    *os.File
	log        *zap.Logger
	asyncMode  bool
	eventQueue chan *Event
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	fileMu sync.Mutex
	mu     sync.Mutex
	recent []*Event
	nextID int64
}

// NewLogger creates a new audit logger. db may be nil.
func NewLogger(db *sql.DB, logFilePath string, asyncMode bool, log *zap.Logger) (*Logger, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if db != nil {
		if _, err := db.Exec(auditSchema); err != nil {
			return nil, fmt.Errorf("failed to create audit log table: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := &Logger{
		db:        db,
		logFile:   logFile,
		log:       log.Named("audit"),
		asyncMode: asyncMode,
		ctx:       ctx,
		cancel:    cancel,
	}

	if asyncMode {
		logger.eventQueue = make(chan *Event, 1000)
		logger.startAsyncLogger()
	}

	return logger, nil
}

// Log records an audit event. In async mode a full queue drops the event and
// reports an error rather than blocking the caller.
func (al *Logger) Log(event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if al.asyncMode {
		select {
		case al.eventQueue <- event:
			return nil
		default:
			al.log.Warn("audit queue full, event dropped", zap.String("action", event.Action))
			return fmt.Errorf("audit log queue is full")
		}
	}

	return al.writeEvent(event)
}

// writeEvent writes event to database and file
func (al *Logger) writeEvent(event *Event) error {
	if al.db != nil {
		result, err := al.db.Exec(insertEvent,
			event.Timestamp,
			event.Level,
			event.UserID,
			event.Role,
			event.Action,
			event.Resource,
			event.IPAddress,
			event.Success,
			event.ErrorMsg,
			event.Metadata,
		)
		if err != nil {
			// The file copy is still written below.
			al.log.Error("failed to write audit event to database", zap.String("action", event.Action), zap.Error(err))
		} else {
			event.ID, _ = result.LastInsertId()
		}
	} else {
		al.remember(event)
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	al.fileMu.Lock()
	defer al.fileMu.Unlock()
	if _, err := al.logFile.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	return nil
}

func (al *Logger) remember(event *Event) {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.nextID++
	event.ID = al.nextID
	al.recent = append(al.recent, event)
	if len(al.recent) > recentCapacity {
		al.recent = al.recent[len(al.recent)-recentCapacity:]
	}
}

// startAsyncLogger starts async logging worker
func (al *Logger) startAsyncLogger() {
	al.wg.Add(1)
	go func() {
		defer al.wg.Done()
		for {
			select {
			case event := <-al.eventQueue:
				if err := al.writeEvent(event); err != nil {
					al.log.Error("failed to write audit event", zap.Error(err))
				}
			case <-al.ctx.Done():
				for len(al.eventQueue) > 0 {
					event := <-al.eventQueue
					if err := al.writeEvent(event); err != nil {
						al.log.Error("failed to write audit event", zap.Error(err))
					}
				}
				return
			}
		}
	}()
}

// QueryLogs returns the newest events matching filters
func (al *Logger) QueryLogs(filters QueryFilters) ([]*Event, error) {
	if filters.Limit <= 0 {
		filters.Limit = 100
	}
	if al.db == nil {
		return al.queryRecent(filters), nil
	}

	query, args := filters.sql()
	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var userID, role, ip, errMsg, metadata sql.NullString
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Level,
			&userID,
			&role,
			&event.Action,
			&event.Resource,
			&ip,
			&event.Success,
			&errMsg,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.UserID = userID.String
		event.Role = role.String
		event.IPAddress = ip.String
		event.ErrorMsg = errMsg.String
		event.Metadata = metadata.String
		events = append(events, event)
	}

	return events, rows.Err()
}

func (al *Logger) queryRecent(filters QueryFilters) []*Event {
	al.mu.Lock()
	defer al.mu.Unlock()

	var events []*Event
	for i := len(al.recent) - 1; i >= 0 && len(events) < filters.Limit; i-- {
		if filters.matches(al.recent[i]) {
			events = append(events, al.recent[i])
		}
	}
	return events
}

// Close flushes queued events and closes the log file
func (al *Logger) Close() error {
	if al.asyncMode {
		al.cancel()
		al.wg.Wait()
	}

	return al.logFile.Close()
}
