package predict

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mfalcone/ventus/internal/logger"
	_ "modernc.org/sqlite"
)

// Persistable is implemented by every struct the sqlite layer can store.
// Column layout, types, primary keys and indexes all come from struct
// tags, so adding a persisted type means adding tags, not SQL.
type Persistable interface {
	GetTableName() string
	BeforeSave() error
}

// SQLiteStore implements Store on an embedded sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the database at path and
// ensures all tables exist.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	for _, obj := range []Persistable{&Team{}, &Match{}, &PlayerAppearance{}, &FormSnapshot{}, &AccuracyProfile{}} {
		if err := s.createTable(obj); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("Database initialized successfully", path)
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

///////////////////////////////////////////////////////////////
////////////////////////// Schema /////////////////////////////
///////////////////////////////////////////////////////////////

func (s *SQLiteStore) createTable(obj Persistable) error {
	tableName := obj.GetTableName()
	createSQL := generateCreateTableSQL(obj, tableName)

	logger.Debug("Creating table with SQL", createSQL)

	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	for _, query := range generateIndexSQL(obj, tableName) {
		logger.Debug("Creating index with SQL", query)
		if _, err := s.db.Exec(query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}

	return nil
}

// generateCreateTableSQL generates CREATE TABLE SQL from struct tags
func generateCreateTableSQL(obj interface{}, tableName string) string {
	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var columns []string
	var primaryKeys []string

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		if !field.IsExported() {
			continue
		}

		dbType := field.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}

		columnName := columnNameFor(field)

		if field.Tag.Get("primary") == "true" {
			primaryKeys = append(primaryKeys, columnName)
		}

		columns = append(columns, fmt.Sprintf("%s %s", columnName, dbType))
	}

	if len(primaryKeys) > 0 {
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(columns, ", "))
}

// generateIndexSQL generates index creation SQL from struct tags
func generateIndexSQL(obj interface{}, tableName string) []string {
	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var indexSQL []string
	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		if field.Tag.Get("index") == "" {
			continue
		}
		columnName := columnNameFor(field)
		indexName := fmt.Sprintf("idx_%s_%s", tableName, columnName)
		indexSQL = append(indexSQL,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, tableName, columnName))
	}
	return indexSQL
}

func columnNameFor(field reflect.StructField) string {
	if name := field.Tag.Get("column"); name != "" {
		return name
	}
	return strings.ToLower(field.Name)
}

///////////////////////////////////////////////////////////////
////////////////////////// Generic CRUD ///////////////////////
///////////////////////////////////////////////////////////////

// save upserts the object. Primary key columns come from the struct tags,
// so a second save of the same key replaces the row.
func (s *SQLiteStore) save(obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	tableName := obj.GetTableName()
	columns, placeholders, values := getInsertData(obj)

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	logger.Debug("Upsert SQL", query)

	if _, err := s.db.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to save into %s: %w", tableName, err)
	}
	return nil
}

// getInsertData extracts column names, placeholders, and values for INSERT.
// time.Time fields are bound as RFC3339 UTC strings so that lexicographic
// comparison in SQL matches chronological order.
func getInsertData(obj interface{}) ([]string, []string, []interface{}) {
	objValue := reflect.ValueOf(obj)
	objType := reflect.TypeOf(obj)
	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
		objType = objType.Elem()
	}

	var columns []string
	var placeholders []string
	var values []interface{}

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		fieldValue := objValue.Field(i)

		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}

		columns = append(columns, columnNameFor(field))
		placeholders = append(placeholders, "?")

		if t, ok := fieldValue.Interface().(time.Time); ok {
			values = append(values, t.UTC().Format(time.RFC3339))
		} else {
			values = append(values, fieldValue.Interface())
		}
	}

	return columns, placeholders, values
}

// getSelectData extracts column names and scan destinations for SELECT.
// It returns a fixup to run after Scan that parses time columns back
// into their time.Time fields.
func getSelectData(obj interface{}) ([]string, []interface{}, func() error) {
	objValue := reflect.ValueOf(obj)
	objType := reflect.TypeOf(obj)
	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
		objType = objType.Elem()
	}

	var columns []string
	var destinations []interface{}
	var fixups []func() error

	for i := 0; i < objType.NumField(); i++ {
		field := objType.Field(i)
		fieldValue := objValue.Field(i)

		if !field.IsExported() || field.Tag.Get("dbtype") == "" {
			continue
		}

		columns = append(columns, columnNameFor(field))

		if _, ok := fieldValue.Interface().(time.Time); ok {
			raw := new(string)
			destinations = append(destinations, raw)
			fv := fieldValue
			fixups = append(fixups, func() error {
				parsed, err := time.Parse(time.RFC3339, *raw)
				if err != nil {
					return fmt.Errorf("failed to parse time column: %w", err)
				}
				fv.Set(reflect.ValueOf(parsed))
				return nil
			})
			continue
		}

		destinations = append(destinations, fieldValue.Addr().Interface())
	}

	fixup := func() error {
		for _, f := range fixups {
			if err := f(); err != nil {
				return err
			}
		}
		return nil
	}
	return columns, destinations, fixup
}

// findWhere executes a SELECT with the given WHERE (and trailing ORDER
// BY / LIMIT) clause and returns the hydrated objects.
func (s *SQLiteStore) findWhere(obj Persistable, whereClause string, args ...interface{}) ([]interface{}, error) {
	tableName := obj.GetTableName()
	columns, _, _ := getSelectData(obj)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), tableName, whereClause)

	logger.Debug("findWhere SQL", query)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	objType := reflect.TypeOf(obj)
	if objType.Kind() == reflect.Ptr {
		objType = objType.Elem()
	}

	var results []interface{}
	for rows.Next() {
		newObj := reflect.New(objType).Interface()
		_, destinations, fixup := getSelectData(newObj)

		if err := rows.Scan(destinations...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}
		if err := fixup(); err != nil {
			return nil, err
		}
		results = append(results, newObj)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", tableName, err)
	}

	return results, nil
}

///////////////////////////////////////////////////////////////
////////////////////////// Store interface ////////////////////
///////////////////////////////////////////////////////////////

func (s *SQLiteStore) SaveTeam(t *Team) error              { return s.save(t) }
func (s *SQLiteStore) SaveMatch(m *Match) error            { return s.save(m) }
func (s *SQLiteStore) SaveAppearance(a *PlayerAppearance) error { return s.save(a) }
func (s *SQLiteStore) SaveProfile(p *AccuracyProfile) error {
	return s.save(p)
}

func (s *SQLiteStore) TeamMatches(teamID int64, season string, before time.Time, limit int) ([]*Match, error) {
	rows, err := s.findWhere(&Match{},
		"finished = 1 AND (home_team_id = ? OR away_team_id = ?) AND (? = '' OR season = ?) AND utc_time < ? ORDER BY utc_time DESC, id DESC LIMIT ?",
		teamID, teamID, season, season, before.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	return asMatches(rows), nil
}

func (s *SQLiteStore) HeadToHead(teamA, teamB int64, before time.Time, limit int) ([]*Match, error) {
	rows, err := s.findWhere(&Match{},
		"finished = 1 AND ((home_team_id = ? AND away_team_id = ?) OR (home_team_id = ? AND away_team_id = ?)) AND utc_time < ? ORDER BY utc_time DESC, id DESC LIMIT ?",
		teamA, teamB, teamB, teamA, before.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	return asMatches(rows), nil
}

func (s *SQLiteStore) MatchByID(id int64) (*Match, error) {
	rows, err := s.findWhere(&Match{}, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].(*Match), nil
}

func (s *SQLiteStore) AllFinished() ([]*Match, error) {
	rows, err := s.findWhere(&Match{}, "finished = 1 ORDER BY utc_time ASC, id ASC")
	if err != nil {
		return nil, err
	}
	return asMatches(rows), nil
}

func (s *SQLiteStore) Appearances(matchID, teamID int64) ([]*PlayerAppearance, error) {
	rows, err := s.findWhere(&PlayerAppearance{}, "match_id = ? AND team_id = ?", matchID, teamID)
	if err != nil {
		return nil, err
	}
	return asAppearances(rows), nil
}

func (s *SQLiteStore) PlayerAppearances(playerID int64, before time.Time, limit int) ([]*PlayerAppearance, error) {
	// Ordered and bounded by the kickoff of the match each appearance
	// belongs to, so later matches never leak into earlier features.
	rows, err := s.findWhere(&PlayerAppearance{},
		"player_id = ? AND (SELECT utc_time FROM matches WHERE matches.id = player_appearances.match_id) < ? "+
			"ORDER BY (SELECT utc_time FROM matches WHERE matches.id = player_appearances.match_id) DESC LIMIT ?",
		playerID, before.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	return asAppearances(rows), nil
}

func (s *SQLiteStore) SaveFormSnapshot(snap *FormSnapshot) error { return s.save(snap) }

func (s *SQLiteStore) FormSnapshotFor(matchID, teamID int64) (*FormSnapshot, error) {
	rows, err := s.findWhere(&FormSnapshot{}, "match_id = ? AND team_id = ?", matchID, teamID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].(*FormSnapshot), nil
}

func (s *SQLiteStore) Profile(market string) (*AccuracyProfile, error) {
	rows, err := s.findWhere(&AccuracyProfile{}, "market = ?", market)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].(*AccuracyProfile), nil
}

func (s *SQLiteStore) Profiles() ([]*AccuracyProfile, error) {
	rows, err := s.findWhere(&AccuracyProfile{}, "1=1 ORDER BY market ASC")
	if err != nil {
		return nil, err
	}
	out := make([]*AccuracyProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(*AccuracyProfile))
	}
	return out, nil
}

func asMatches(rows []interface{}) []*Match {
	out := make([]*Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(*Match))
	}
	return out
}

func asAppearances(rows []interface{}) []*PlayerAppearance {
	out := make([]*PlayerAppearance, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(*PlayerAppearance))
	}
	return out
}
