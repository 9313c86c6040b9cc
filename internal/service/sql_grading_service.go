package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// fixtureSchema is the deterministic relational fixture candidate queries run
// against. It is recreated from scratch for every grading call so sessions
// can never observe each other's mutations.
const fixtureSchema = `
CREATE TABLE departments (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE employees (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    department_id INTEGER,
    salary INTEGER,
    FOREIGN KEY (department_id) REFERENCES departments(id)
);

CREATE TABLE projects (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    budget INTEGER
);

CREATE TABLE employee_projects (
    employee_id INTEGER,
    project_id INTEGER,
    PRIMARY KEY (employee_id, project_id),
    FOREIGN KEY (employee_id) REFERENCES employees(id),
    FOREIGN KEY (project_id) REFERENCES projects(id)
);
`

var fixtureRows = []string{
	`INSERT INTO departments (id, name) VALUES (1, 'Engineering'), (2, 'HR'), (3, 'Sales')`,
	`INSERT INTO employees (id, name, department_id, salary) VALUES
		(1, 'Alice', 1, 90000),
		(2, 'Bob', 1, 80000),
		(3, 'Charlie', 2, 60000),
		(4, 'Diana', 3, 75000)`,
	`INSERT INTO projects (id, name, budget) VALUES
		(1, 'Platform Revamp', 200000),
		(2, 'AI Initiative', 300000)`,
	`INSERT INTO employee_projects (employee_id, project_id) VALUES (1, 1), (2, 1), (1, 2), (4, 2)`,
}

// SQLGradingService grades database answers by executing the candidate
// statement against a disposable in-memory fixture and comparing the result
// set with the question's expected rows.
type SQLGradingService struct {
	logger zerolog.Logger
}

// NewSQLGradingService constructs a SQL grading service.
func NewSQLGradingService(log zerolog.Logger) *SQLGradingService {
	return &SQLGradingService{
		logger: log.With().Str("component", "sql_grading_service").Logger(),
	}
}

// Grade runs the candidate statement and classifies the outcome. SQL faults
// and wrong result sets are structured results; an error means the fixture
// itself could not be prepared.
func (s *SQLGradingService) Grade(ctx context.Context, question models.Question, answer models.Answer) (models.ExecutionResult, error) {
	db, err := openFixture()
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("prepare sql fixture: %w", err)
	}
	defer closeFixture(db)

	start := time.Now()
	rows, _, execErr := s.executeStatement(ctx, db, answer.Content)
	elapsed := time.Since(start).Milliseconds()

	if execErr != nil {
		status := models.ExecutionStatusRuntimeError
		if strings.Contains(strings.ToLower(execErr.Error()), "syntax") {
			status = models.ExecutionStatusSyntaxError
		}
		return models.NewExecutionResult(question.ID, models.ExecutionTypeDatabase, status, "", execErr.Error(), 0, 0, elapsed)
	}

	if !s.Validate(question.ExpectedRows, rows) {
		return models.NewExecutionResult(question.ID, models.ExecutionTypeDatabase, models.ExecutionStatusFailedTests,
			renderRows(rows), "result validation failed", 0, 0, elapsed)
	}

	return models.NewExecutionResult(question.ID, models.ExecutionTypeDatabase, models.ExecutionStatusSuccess,
		renderRows(rows), "", 0, 0, elapsed)
}

// executeStatement runs the statement, fetching rows for SELECT-shaped
// statements and committing mutations otherwise. Both count as successful
// execution; correctness is judged separately.
func (s *SQLGradingService) executeStatement(ctx context.Context, db *gorm.DB, statement string) ([][]interface{}, []string, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(statement)), "select") {
		if err := db.WithContext(ctx).Exec(statement).Error; err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	result, err := db.WithContext(ctx).Raw(statement).Rows()
	if err != nil {
		return nil, nil, err
	}
	defer result.Close()

	columns, err := result.Columns()
	if err != nil {
		return nil, nil, err
	}

	var fetched [][]interface{}
	for result.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := result.Scan(pointers...); err != nil {
			return nil, nil, err
		}
		fetched = append(fetched, values)
	}
	if err := result.Err(); err != nil {
		return nil, nil, err
	}

	return fetched, columns, nil
}

// Validate compares two row sets ignoring row order but preserving
// duplicates: each row becomes a fixed-order tuple and the whole collection
// is sorted lexicographically before an exact comparison.
func (s *SQLGradingService) Validate(expected, actual [][]interface{}) bool {
	return rowsEqual(normalizeRows(expected), normalizeRows(actual))
}

func normalizeRows(rows [][]interface{}) []string {
	normalized := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = normalizeCell(cell)
		}
		normalized = append(normalized, strings.Join(cells, "\x1f"))
	}
	sort.Strings(normalized)
	return normalized
}

// normalizeCell renders a cell into a canonical string so int64 from the
// driver compares equal to float64 from JSON-decoded expectations.
func normalizeCell(cell interface{}) string {
	switch v := cell.(type) {
	case nil:
		return "<nil>"
	case []byte:
		return string(v)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func rowsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func renderRows(rows [][]interface{}) string {
	if len(rows) == 0 {
		return "[]"
	}

	var b strings.Builder
	b.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = normalizeCell(cell)
		}
		b.WriteString("(" + strings.Join(cells, ", ") + ")")
	}
	b.WriteString("]")
	return b.String()
}

func openFixture() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Exec(fixtureSchema).Error; err != nil {
		closeFixture(db)
		return nil, err
	}
	for _, seed := range fixtureRows {
		if err := db.Exec(seed).Error; err != nil {
			closeFixture(db)
			return nil, err
		}
	}

	return db, nil
}

func closeFixture(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
