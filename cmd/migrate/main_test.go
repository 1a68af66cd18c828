package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upSteps   []int
	downSteps []int
	version   int64
	applied   int
	upErr     error
	statusErr error
	closed    bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	if f.upErr != nil {
		return f.upErr
	}
	f.version, f.applied = 3, 3
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	f.version--
	f.applied--
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, f.statusErr
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func openFake(f *fakeMigrator) openFunc {
	return func(context.Context, string) (migrator, error) { return f, nil }
}

func noEnv(string) (string, bool) { return "", false }

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction=DOWN", "-steps=2", "-dsn= postgres://x "}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, options{direction: "down", steps: 2, dsn: "postgres://x"}, opts)
}

func TestParseOptions_DSNFromEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == envPostgresDSN {
			return "postgres://from-env", true
		}
		return "", false
	}

	opts, err := parseOptions(nil, lookup)
	require.NoError(t, err)
	assert.Equal(t, "up", opts.direction)
	assert.Equal(t, "postgres://from-env", opts.dsn)
}

func TestParseOptions_Errors(t *testing.T) {
	_, err := parseOptions([]string{"-direction=status"}, noEnv)
	assert.ErrorIs(t, err, errDSNRequired)

	_, err = parseOptions([]string{"-direction=sideways", "-dsn=x"}, noEnv)
	assert.ErrorContains(t, err, "unsupported direction")

	_, err = parseOptions([]string{"-steps=-1", "-dsn=x"}, noEnv)
	assert.ErrorContains(t, err, "steps must be >= 0")

	_, err = parseOptions([]string{"-unknown"}, noEnv)
	assert.Error(t, err)
}

func TestRun_Up(t *testing.T) {
	f := &fakeMigrator{}
	var out bytes.Buffer

	err := run(context.Background(), options{direction: "up", dsn: "x"}, openFake(f), &out)

	require.NoError(t, err)
	assert.Equal(t, []int{0}, f.upSteps)
	assert.True(t, f.closed)
	assert.Equal(t, "migrate up ok: version=3 applied=3\n", out.String())
}

func TestRun_DownDefaultsToOneStep(t *testing.T) {
	f := &fakeMigrator{version: 3, applied: 3}
	var out bytes.Buffer

	err := run(context.Background(), options{direction: "down", dsn: "x"}, openFake(f), &out)

	require.NoError(t, err)
	assert.Equal(t, []int{1}, f.downSteps)
	assert.Equal(t, "migrate down ok: version=2 applied=2\n", out.String())
}

func TestRun_Status(t *testing.T) {
	f := &fakeMigrator{version: 2, applied: 2}
	var out bytes.Buffer

	err := run(context.Background(), options{direction: "status", dsn: "x"}, openFake(f), &out)

	require.NoError(t, err)
	assert.Empty(t, f.upSteps)
	assert.Empty(t, f.downSteps)
	assert.Equal(t, "migration status: version=2 applied=2\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	openErr := errors.New("connection refused")
	err := run(context.Background(), options{direction: "up", dsn: "x"},
		func(context.Context, string) (migrator, error) { return nil, openErr }, &bytes.Buffer{})
	assert.ErrorIs(t, err, openErr)

	f := &fakeMigrator{upErr: errors.New("bad sql")}
	err = run(context.Background(), options{direction: "up", dsn: "x"}, openFake(f), &bytes.Buffer{})
	assert.ErrorContains(t, err, "migrate up failed")
	assert.True(t, f.closed)

	f = &fakeMigrator{statusErr: errors.New("no table")}
	err = run(context.Background(), options{direction: "status", dsn: "x"}, openFake(f), &bytes.Buffer{})
	assert.ErrorContains(t, err, "migration status failed")
}

func TestRun_LivePostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SHOP_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("SHOP_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, options{direction: "up", dsn: dsn}, openPostgres, &out))
	require.NoError(t, run(ctx, options{direction: "status", dsn: dsn}, openPostgres, &out))
	assert.Contains(t, out.String(), "migration status:")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
