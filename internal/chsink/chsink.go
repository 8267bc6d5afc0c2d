// Package chsink writes event-selection records to a ClickHouse database.
package chsink

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/oklog/ulid/v2"
	"github.com/usnistgov/evsel"
)

// Config says where the database lives. Credentials come from the
// EVSEL_DB_USER and EVSEL_DB_PASSWORD environment variables.
type Config struct {
	Addr     []string `mapstructure:"addr"`
	Database string   `mapstructure:"database"`
}

// Connection is a RecordSink writing to ClickHouse. A Connection whose database
// could not be reached silently drops everything.
type Connection struct {
	conn          clickhouse.Conn
	err           error
	activityEntry *ActivityMessage
}

const defaultDatabaseName = "evsel" // official SQL name of the database

const timeFormat = "2006-01-02 15:04:05.000000"

// IsConnected reports whether the database is usable.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// Err returns the first error the connection met, if any.
func (db *Connection) Err() error {
	return db.err
}

// PingServer checks that the configured server answers.
func PingServer(cfg Config) error {
	db := createConnection(cfg)
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected: %v", db.err)
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	return db.conn.Close()
}

// NewActivity describes the current processing session.
func NewActivity() *ActivityMessage {
	host, err := os.Hostname()
	if err != nil {
		host = "host not detected"
	}
	return &ActivityMessage{
		ID:        ulid.Make().String(),
		Hostname:  host,
		Githash:   evsel.Build.Githash,
		Version:   evsel.Build.Version,
		GoVersion: runtime.Version(),
		CPUs:      runtime.NumCPU(),
		Start:     evsel.EvselStartTime,
	}
}

// StartConnection connects and records the start of activity.
func StartConnection(cfg Config, activity *ActivityMessage) *Connection {
	db := createConnection(cfg)
	db.activityEntry = activity
	db.logActivity()
	return db
}

// DummyConnection is a Connection that is never connected.
func DummyConnection() *Connection {
	return &Connection{}
}

func createConnection(cfg Config) *Connection {
	db := &Connection{}
	dbName := cfg.Database
	if dbName == "" {
		dbName = defaultDatabaseName
	}
	addr := cfg.Addr
	if len(addr) == 0 {
		addr = []string{"localhost:9000"}
	}
	auth := clickhouse.Auth{
		Database: dbName,
		Username: os.Getenv("EVSEL_DB_USER"),
		Password: os.Getenv("EVSEL_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "evsel", Version: evsel.Build.Version},
		},
	}
	opt := clickhouse.Options{
		Addr:       addr,
		Auth:       auth,
		ClientInfo: client,
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn

	ctx := context.Background()
	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			evsel.ProblemLogger.Printf("ClickHouse exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() || db.activityEntry == nil {
		return
	}
	ctx := context.Background()
	const nowait = false
	ae := db.activityEntry
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO evselactivity VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, ae.CPUs, ae.Start.Format(timeFormat), ae.End.Format(timeFormat),
	); err != nil {
		evsel.ProblemLogger.Println("Error raised on AsyncInsert into evselactivity ", err)
		db.err = err
	}
}

// Close records the end of activity and closes the connection.
func (db *Connection) Close() error {
	if !db.IsConnected() {
		return nil
	}
	if db.activityEntry != nil {
		db.activityEntry.End = time.Now()
		db.logActivity()
	}
	return db.conn.Close()
}

// WriteBatch implements evsel.RecordSink.
func (db *Connection) WriteBatch(ctx context.Context, r *evsel.BatchResult) error {
	if !db.IsConnected() || r == nil {
		return nil
	}
	msg := batchMessage(r)
	if db.activityEntry != nil {
		msg.ActivityID = db.activityEntry.ID
	}
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO batches VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		msg.ID, msg.ActivityID, msg.Run, msg.NBCs, msg.NEvents, msg.NAccepted,
		msg.Start.Format(timeFormat), msg.End.Format(timeFormat),
	); err != nil {
		return fmt.Errorf("insert into batches: %w", err)
	}
	if err := db.insertBCs(ctx, r); err != nil {
		return err
	}
	return db.insertEvents(ctx, r)
}

func batchMessage(r *evsel.BatchResult) *BatchMessage {
	return &BatchMessage{
		ID:        r.ID.String(),
		Run:       r.Run,
		NBCs:      len(r.BCs),
		NEvents:   len(r.Events),
		NAccepted: r.Accepted,
		Start:     r.Start,
		End:       r.Finish,
	}
}

func (db *Connection) insertBCs(ctx context.Context, r *evsel.BatchResult) error {
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO bcsels")
	if err != nil {
		return fmt.Errorf("prepare bcsels: %w", err)
	}
	defer batch.Abort()
	id := r.ID.String()
	for i := range r.BCs {
		s := &r.BCs[i]
		if err := batch.Append(id, r.Run, r.GlobalBC(i),
			uint32(s.Alias), uint64(s.Selection),
			s.BBV0A, s.BBV0C, s.BGV0A, s.BGV0C, s.BBFDA, s.BBFDC, s.BGFDA, s.BGFDC,
			s.MultRingV0A[:], s.MultRingV0C[:], s.SPDClusters,
			s.FoundFT0, s.FoundFV0, s.FoundFDD, s.FoundZDC,
		); err != nil {
			return fmt.Errorf("append to bcsels: %w", err)
		}
	}
	return batch.Send()
}

func (db *Connection) insertEvents(ctx context.Context, r *evsel.BatchResult) error {
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO evsels")
	if err != nil {
		return fmt.Errorf("prepare evsels: %w", err)
	}
	defer batch.Abort()
	id := r.ID.String()
	for k := range r.Events {
		e := &r.Events[k]
		if err := batch.Append(id, r.Run, k,
			uint32(e.Alias), uint64(e.Selection),
			e.BBV0A, e.BBV0C, e.BGV0A, e.BGV0C, e.BBFDA, e.BBFDC, e.BGFDA, e.BGFDC,
			e.MultRingV0A[:], e.MultRingV0C[:], e.SPDClusters, e.NContrib,
			e.Sel7, e.Sel8, e.Sel1,
			e.FoundBC, e.FoundFT0, e.FoundFV0, e.FoundFDD, e.FoundZDC,
		); err != nil {
			return fmt.Errorf("append to evsels: %w", err)
		}
	}
	return batch.Send()
}
