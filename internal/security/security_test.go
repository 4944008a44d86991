package security

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  SanitizeOptions
		want  string
	}{
		{"script", "<script>alert(1)</script>safe", DefaultSanitize, "safe"},
		{"script disabled", "<script>alert(1)</script>safe", SanitizeOptions{Styles: true, Comments: true}, "<script>alert(1)</script>safe"},
		{"script attributes and case", "a<SCRIPT type=\"text/javascript\">\nx()\n</SCRIPT>b", DefaultSanitize, "ab"},
		{"lazy match", "<script>1</script>keep<script>2</script>", DefaultSanitize, "keep"},
		{"style", "<style media=\"all\">p{}</style><p>x</p>", DefaultSanitize, "<p>x</p>"},
		{"styles strip through the last close", "<style>a{}</style>between<style>b{}</style>after", DefaultSanitize, "after"},
		{"style disabled", "<style>p{}</style>", SanitizeOptions{Scripts: true}, "<style>p{}</style>"},
		{"comment", "a<!-- hidden\nstill hidden -->b", DefaultSanitize, "ab"},
		{"comment disabled", "a<!-- x -->b", SanitizeOptions{}, "a<!-- x -->b"},
		{"plain", "nothing to strip", DefaultSanitize, "nothing to strip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMarkup(tt.input, tt.opts))
		})
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		query string
		err   error
	}{
		{"SELECT id, deleted_at FROM users", nil},
		{"  select 1", nil},
		{"UPDATE users SET a = 1", ErrNotSelect},
		{"SELECT 1; DROP TABLE users", ErrMultipleQueries},
		{"SELECT * FROM users WHERE id IN (SELECT id FROM t) UNION SELECT 1", ErrForbiddenKeyword},
		{"SELECT * FROM information_schema.tables", ErrSystemTable},
		{"SELECT @@version", ErrForbiddenKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := ValidateQuery(tt.query)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestVerifyJob(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()
	sig, err := SignJob("s3cret", "job-1", "SELECT 1", nil, ts)
	require.NoError(t, err)

	assert.NoError(t, VerifyJob("s3cret", "job-1", "SELECT 1", nil, ts, sig, now))
	assert.NoError(t, VerifyJob("s3cret", "job-1", "SELECT 1", []any{}, ts, sig, now), "nil and empty args sign alike")
	assert.NoError(t, VerifyJob("", "job-1", "SELECT 1", nil, 0, "", now), "no secret, no check")

	assert.ErrorIs(t, VerifyJob("s3cret", "job-1", "SELECT 2", nil, ts, sig, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyJob("other", "job-1", "SELECT 1", nil, ts, sig, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyJob("s3cret", "job-1", "SELECT 1", nil, ts, sig, now.Add(6*time.Minute)), ErrJobExpired)
	assert.ErrorIs(t, VerifyJob("s3cret", "job-1", "SELECT 1", nil, ts, sig, now.Add(-6*time.Minute)), ErrJobExpired)
}

func TestVerifyJobCoversArgs(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	query := "SELECT * FROM orders WHERE tenant_id = ?"
	sig, err := SignJob("s3cret", "job-2", query, []any{"tenant-A"}, now.Unix())
	require.NoError(t, err)

	assert.NoError(t, VerifyJob("s3cret", "job-2", query, []any{"tenant-A"}, now.Unix(), sig, now))
	assert.ErrorIs(t, VerifyJob("s3cret", "job-2", query, []any{"tenant-B"}, now.Unix(), sig, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyJob("s3cret", "job-2", query, nil, now.Unix(), sig, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyJob("s3cret", "job-2", query, []any{"tenant-A", 1}, now.Unix(), sig, now), ErrInvalidSignature)
}

func TestSignJobSurvivesJSONTransport(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	args := []any{7, "x", true, nil}
	sig, err := SignJob("s3cret", "job-3", "SELECT ?", args, now.Unix())
	require.NoError(t, err)

	// The agent sees the args after a JSON round trip: 7 arrives as float64.
	wire, err := json.Marshal(args)
	require.NoError(t, err)
	var received []any
	require.NoError(t, json.Unmarshal(wire, &received))

	assert.NoError(t, VerifyJob("s3cret", "job-3", "SELECT ?", received, now.Unix(), sig, now))
}
