package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/pkg/sandbox"
)

// ResultMarker is the line prefix the generated harness prints exactly once
// after all tests ran. Its absence on a non-timeout run is itself a failure.
const ResultMarker = "__RESULT__"

// CodingGradingService grades coding answers by wrapping the candidate code
// in a generated test harness and executing it in the sandbox.
type CodingGradingService struct {
	executor sandbox.Executor
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCodingGradingService constructs a coding grading service.
func NewCodingGradingService(executor sandbox.Executor, timeout time.Duration, logger zerolog.Logger) *CodingGradingService {
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}

	return &CodingGradingService{
		executor: executor,
		timeout:  timeout,
		logger:   logger.With().Str("component", "coding_grading_service").Logger(),
	}
}

// Grade executes the candidate code against the question's test cases and
// classifies the outcome. Candidate faults (bad syntax, failing tests,
// timeouts) are structured results, never errors; an error means the sandbox
// itself could not run.
func (s *CodingGradingService) Grade(ctx context.Context, question models.Question, answer models.Answer) (models.ExecutionResult, error) {
	harness, err := BuildHarness(answer.Content, question.FunctionName, question.TestCases)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("build harness: %w", err)
	}

	raw, err := s.executor.Run(ctx, sandbox.RunRequest{Source: harness, Timeout: s.timeout})
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("sandbox run: %w", err)
	}

	result := s.classify(question.ID, raw)
	s.logger.Info().
		Str("question_id", question.ID).
		Str("status", string(result.Status)).
		Int("passed", result.PassedTests).
		Int("total", result.TotalTests).
		Int64("elapsed_ms", result.ExecutionTimeMs).
		Msg("coding answer graded")

	return result, nil
}

// classify maps a raw sandbox run onto the closed status taxonomy. The
// checks are ordered: timeout, then crash-before-marker, then missing
// marker, then the pass tally.
func (s *CodingGradingService) classify(questionID string, raw sandbox.RunOutput) models.ExecutionResult {
	elapsed := raw.Duration.Milliseconds()

	build := func(status models.ExecutionStatus, errMessage string, passed, total int) models.ExecutionResult {
		result, err := models.NewExecutionResult(questionID, models.ExecutionTypeCoding, status, raw.Stdout, errMessage, passed, total, elapsed)
		if err != nil {
			// Classification produced an inconsistent result; report it as an
			// internal failure rather than dropping the run.
			s.logger.Error().Err(err).Str("question_id", questionID).Msg("inconsistent execution result")
			result, _ = models.NewExecutionResult(questionID, models.ExecutionTypeCoding, models.ExecutionStatusInternalError, raw.Stdout, err.Error(), 0, 0, elapsed)
		}
		return result
	}

	if raw.TimedOut {
		return build(models.ExecutionStatusTimeout, raw.Stderr, 0, 0)
	}

	marker, found := findMarkerLine(raw.Stdout)
	if raw.ExitCode != 0 && !found {
		status := models.ExecutionStatusRuntimeError
		if strings.Contains(raw.Stderr, "SyntaxError") {
			status = models.ExecutionStatusSyntaxError
		}
		return build(status, raw.Stderr, 0, 0)
	}

	if !found {
		return build(models.ExecutionStatusInternalError, "missing result marker", 0, 0)
	}

	passed, total, err := parseMarkerLine(marker)
	if err != nil {
		return build(models.ExecutionStatusInternalError, err.Error(), 0, 0)
	}

	if passed == total {
		return build(models.ExecutionStatusSuccess, "", passed, total)
	}

	return build(models.ExecutionStatusFailedTests, "some tests failed", passed, total)
}

func findMarkerLine(stdout string) (string, bool) {
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, ResultMarker+":") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

func parseMarkerLine(line string) (int, int, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("malformed result marker %q", line)
	}

	passed, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed result marker %q", line)
	}
	total, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed result marker %q", line)
	}
	if passed < 0 || total < 0 || passed > total {
		return 0, 0, fmt.Errorf("inconsistent result marker %q", line)
	}

	return passed, total, nil
}

// BuildHarness generates a self-contained program that defines the candidate
// code, runs every test case catching per-test exceptions, and prints a
// single result marker line after all tests ran.
func BuildHarness(userCode, functionName string, testCases []models.TestCase) (string, error) {
	if strings.TrimSpace(functionName) == "" {
		return "", fmt.Errorf("function name is required")
	}

	var b strings.Builder
	b.WriteString(userCode)
	b.WriteString("\n\n")
	b.WriteString("def __run_tests():\n")
	b.WriteString("    passed = 0\n")
	fmt.Fprintf(&b, "    total = %d\n", len(testCases))

	for idx, test := range testCases {
		call, err := renderCall(functionName, test)
		if err != nil {
			return "", fmt.Errorf("test case %d: %w", idx+1, err)
		}

		expected, err := renderLiteral(test.Expected)
		if err != nil {
			return "", fmt.Errorf("test case %d: %w", idx+1, err)
		}

		b.WriteString("    try:\n")
		fmt.Fprintf(&b, "        result = %s\n", call)
		fmt.Fprintf(&b, "        assert result == %s\n", expected)
		b.WriteString("        passed += 1\n")
		b.WriteString("    except Exception as e:\n")
		fmt.Fprintf(&b, "        print(\"TEST_FAILED:%d\", str(e))\n", idx+1)
	}

	fmt.Fprintf(&b, "    print(\"%s:\" + str(passed) + \":\" + str(total))\n", ResultMarker)
	b.WriteString("\n__run_tests()\n")

	return b.String(), nil
}

func renderCall(functionName string, test models.TestCase) (string, error) {
	parts := make([]string, 0, len(test.Args)+len(test.Kwargs))
	for _, arg := range test.Args {
		literal, err := renderLiteral(arg)
		if err != nil {
			return "", err
		}
		parts = append(parts, literal)
	}

	for _, key := range sortedKeys(test.Kwargs) {
		literal, err := renderLiteral(test.Kwargs[key])
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, literal))
	}

	return fmt.Sprintf("%s(%s)", functionName, strings.Join(parts, ", ")), nil
}

// renderLiteral encodes a value as a Python literal. JSON syntax is valid
// Python for strings, numbers, lists and dicts; the three keywords differ.
func renderLiteral(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "None", nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode literal: %w", err)
		}
		return string(encoded), nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
