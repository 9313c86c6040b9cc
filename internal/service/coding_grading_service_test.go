package service_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/service"
	"github.com/intervo-dev/intervo-go-api/pkg/sandbox"
)

type stubExecutor struct {
	output  sandbox.RunOutput
	err     error
	lastReq sandbox.RunRequest
}

func (s *stubExecutor) Run(_ context.Context, req sandbox.RunRequest) (sandbox.RunOutput, error) {
	s.lastReq = req
	return s.output, s.err
}

func codingQuestion() models.Question {
	return models.Question{
		ID:           "c1",
		Area:         "algorithms",
		Type:         models.QuestionTypeCoding,
		Prompt:       "Sum two integers.",
		Difficulty:   2,
		FunctionName: "add",
		TestCases: []models.TestCase{
			{Args: []interface{}{1, 2}, Expected: 3},
			{Args: []interface{}{-1, 1}, Expected: 0},
		},
	}
}

func codingAnswer(source string) models.Answer {
	return models.Answer{QuestionID: "c1", Content: source, Attempt: 1}
}

func gradeWith(t *testing.T, executor *stubExecutor) models.ExecutionResult {
	t.Helper()
	svc := service.NewCodingGradingService(executor, time.Second, zerolog.New(io.Discard))
	result, err := svc.Grade(context.Background(), codingQuestion(), codingAnswer("def add(a, b):\n    return a + b\n"))
	require.NoError(t, err)
	return result
}

func TestGradeClassifiesSuccess(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stdout:   "__RESULT__:2:2\n",
		ExitCode: 0,
		Duration: 42 * time.Millisecond,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusSuccess, result.Status)
	require.True(t, result.Success)
	require.Equal(t, 2, result.PassedTests)
	require.Equal(t, 2, result.TotalTests)
	require.Equal(t, int64(42), result.ExecutionTimeMs)
	require.InDelta(t, 100, result.Score(), 1e-9)
}

func TestGradeClassifiesFailedTests(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stdout:   "TEST_FAILED:2 \n__RESULT__:1:2\n",
		ExitCode: 0,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusFailedTests, result.Status)
	require.False(t, result.Success)
	require.Equal(t, 1, result.PassedTests)
	require.InDelta(t, 50, result.Score(), 1e-9)
}

func TestGradeClassifiesSyntaxError(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stderr:   `  File "candidate.py", line 1\n    def add(a, b:\nSyntaxError: invalid syntax`,
		ExitCode: 1,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusSyntaxError, result.Status)
	require.Contains(t, result.Error, "SyntaxError")
	require.Zero(t, result.Score())
}

func TestGradeClassifiesRuntimeError(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stderr:   "ZeroDivisionError: division by zero",
		ExitCode: 1,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusRuntimeError, result.Status)
}

func TestGradeClassifiesTimeout(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stderr:   "execution timed out",
		ExitCode: -1,
		TimedOut: true,
		Duration: time.Second,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusTimeout, result.Status)
	require.Zero(t, result.PassedTests)
}

func TestGradeReportsMissingMarkerAsInternalError(t *testing.T) {
	executor := &stubExecutor{output: sandbox.RunOutput{
		Stdout:   "the program printed something else entirely\n",
		ExitCode: 0,
	}}

	result := gradeWith(t, executor)

	require.Equal(t, models.ExecutionStatusInternalError, result.Status)
	require.Contains(t, result.Error, "missing result marker")
}

func TestGradeSandboxFailureIsAnError(t *testing.T) {
	executor := &stubExecutor{err: context.DeadlineExceeded}
	svc := service.NewCodingGradingService(executor, time.Second, zerolog.New(io.Discard))

	_, err := svc.Grade(context.Background(), codingQuestion(), codingAnswer("def add(a, b):\n    return a + b\n"))
	require.Error(t, err)
}

func TestBuildHarnessEmbedsCodeAndTests(t *testing.T) {
	question := codingQuestion()
	source := "def add(a, b):\n    return a + b\n"

	harness, err := service.BuildHarness(source, question.FunctionName, question.TestCases)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(harness, source))
	require.Contains(t, harness, "def __run_tests():")
	require.Contains(t, harness, "result = add(1, 2)")
	require.Contains(t, harness, "assert result == 3")
	require.Contains(t, harness, "result = add(-1, 1)")
	require.Contains(t, harness, `print("__RESULT__:" + str(passed) + ":" + str(total))`)
	require.Contains(t, harness, "__run_tests()")
}

func TestBuildHarnessRendersPythonLiterals(t *testing.T) {
	cases := []models.TestCase{
		{
			Args:     []interface{}{true, nil, "text", []interface{}{1, 2}},
			Kwargs:   map[string]interface{}{"flag": false, "depth": 3},
			Expected: nil,
		},
	}

	harness, err := service.BuildHarness("def check(*args, **kwargs):\n    return None\n", "check", cases)
	require.NoError(t, err)

	// Kwargs render in sorted key order so harnesses are reproducible.
	require.Contains(t, harness, `check(True, None, "text", [1,2], depth=3, flag=False)`)
	require.Contains(t, harness, "assert result == None")
}

func TestBuildHarnessRequiresFunctionName(t *testing.T) {
	_, err := service.BuildHarness("print('hi')", "", nil)
	require.Error(t, err)
}
