package calibdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/usnistgov/evsel"
)

// MySQLConfig locates the calibration database. Empty User and Password are
// taken from the EVSEL_MYSQL_USER and EVSEL_MYSQL_PASSWORD environment variables.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN returns the go-sql-driver data source name.
func (c MySQLConfig) DSN() string {
	user, pass := c.User, c.Password
	if user == "" {
		user = os.Getenv("EVSEL_MYSQL_USER")
	}
	if pass == "" {
		pass = os.Getenv("EVSEL_MYSQL_PASSWORD")
	}
	host, port, dbname := c.Host, c.Port, c.Database
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 3306
	}
	if dbname == "" {
		dbname = "calibration"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", user, pass, host, port, dbname)
}

// MySQLStore is a CalibrationStore reading versioned objects from MySQL. Every
// table carries ValidFrom and ValidUntil columns (ms); the object valid at ts is
// made of the rows of the latest version with ValidFrom <= ts < ValidUntil.
type MySQLStore struct {
	db *sqlx.DB
}

// ConnectMySQL opens and pings the calibration database.
func ConnectMySQL(cfg MySQLConfig) (*MySQLStore, error) {
	db, err := sqlx.Connect("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("could not connect to calibration database: %w", err)
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return &MySQLStore{db: db}, nil
}

// NewMySQLStore wraps an open connection.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Table names of each calibration kind.
const (
	paramsTable  = "EventSelectionParams"
	recipeTable  = "SelectionRecipes"
	aliasTable   = "TriggerAliases"
	fillingTable = "BunchFilling"
)

type paramRow struct {
	Name  string  `db:"Name"`
	Value float64 `db:"Value"`
}

type recipeRow struct {
	Mode string `db:"Mode"`
	Bit  string `db:"Bit"`
}

type slotRow struct {
	Slot int `db:"Slot"`
}

// version finds the validity range of the object of table valid at ts.
func (s *MySQLStore) version(ctx context.Context, table string, ts int64) (evsel.ValidityRange, error) {
	var v evsel.ValidityRange
	q := fmt.Sprintf("SELECT ValidFrom, ValidUntil FROM %s WHERE ValidFrom <= ? AND ValidUntil > ? ORDER BY ValidFrom DESC LIMIT 1", table)
	if err := s.db.GetContext(ctx, &v, q, ts, ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, fmt.Errorf("%w: no row of %s covers %d", evsel.ErrCalibrationUnavailable, table, ts)
		}
		return v, fmt.Errorf("error querying %s: %w", table, err)
	}
	return v, nil
}

// rows selects the columns of every row of table belonging to version v.
func (s *MySQLStore) rows(ctx context.Context, dest any, columns, table string, v evsel.ValidityRange) error {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE ValidFrom = ? AND ValidUntil = ?", columns, table)
	if err := s.db.SelectContext(ctx, dest, q, v.Start, v.End); err != nil {
		return fmt.Errorf("error querying %s: %w", table, err)
	}
	return nil
}

// Fetch implements evsel.CalibrationStore.
func (s *MySQLStore) Fetch(ctx context.Context, kind evsel.CalibrationKind, ts int64) (evsel.Calibration, error) {
	switch kind {
	case evsel.EventSelectionParams:
		return s.fetchParams(ctx, ts)
	case evsel.TriggerAliases:
		return s.fetchAliases(ctx, ts)
	case evsel.BunchFillingScheme:
		return s.fetchFilling(ctx, ts)
	}
	return nil, fmt.Errorf("%w: unknown kind %v", evsel.ErrCalibrationUnavailable, kind)
}

func (s *MySQLStore) fetchParams(ctx context.Context, ts int64) (*evsel.CalibrationParameters, error) {
	v, err := s.version(ctx, paramsTable, ts)
	if err != nil {
		return nil, err
	}
	var params []paramRow
	if err := s.rows(ctx, &params, "Name, Value", paramsTable, v); err != nil {
		return nil, err
	}
	p := &evsel.CalibrationParameters{Valid: v}
	for _, row := range params {
		if err := p.SetNamed(row.Name, row.Value); err != nil {
			return nil, err
		}
	}

	// Recipes are optional; versions without any use the default recipes.
	var recipes []recipeRow
	if err := s.rows(ctx, &recipes, "Mode, Bit", recipeTable, v); err != nil {
		return nil, err
	}
	for _, row := range recipes {
		mode, err := evsel.ParseMode(row.Mode)
		if err != nil {
			return nil, err
		}
		bit, err := evsel.ParseSelectionBit(row.Bit)
		if err != nil {
			return nil, err
		}
		if p.Recipes == nil {
			p.Recipes = make(map[evsel.Mode]evsel.Recipe)
		}
		p.Recipes[mode] = append(p.Recipes[mode], bit)
	}
	return p, nil
}

func (s *MySQLStore) fetchAliases(ctx context.Context, ts int64) (*evsel.TriggerAliasTable, error) {
	v, err := s.version(ctx, aliasTable, ts)
	if err != nil {
		return nil, err
	}
	t := &evsel.TriggerAliasTable{Valid: v}
	if err := s.rows(ctx, &t.Entries, "AliasID, Mask, MaskNext50", aliasTable, v); err != nil {
		return nil, err
	}
	for _, e := range t.Entries {
		if e.Alias < 0 || e.Alias >= evsel.NAliases {
			return nil, fmt.Errorf("%s version %v: alias ID %d out of range [0, %d)", aliasTable, v, int(e.Alias), int(evsel.NAliases))
		}
	}
	return t, nil
}

func (s *MySQLStore) fetchFilling(ctx context.Context, ts int64) (*evsel.BunchFilling, error) {
	v, err := s.version(ctx, fillingTable, ts)
	if err != nil {
		return nil, err
	}
	var slots []slotRow
	if err := s.rows(ctx, &slots, "Slot", fillingTable, v); err != nil {
		return nil, err
	}
	colliding := make([]int, len(slots))
	for i, row := range slots {
		colliding[i] = row.Slot
	}
	return evsel.NewBunchFilling(v, colliding), nil
}
