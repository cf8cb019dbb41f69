package sqlscript_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vijaygupta18/multidb/internal/sqlscript"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "simple statements",
			script: "SELECT 1; SELECT 2;",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "trailing statement without delimiter",
			script: "SELECT 1;\nSELECT 2",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "comments are stripped",
			script: "-- header\nSELECT 1; /* block; comment */ SELECT 2;",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "semicolons inside literals",
			script: `SELECT 'a;b'; SELECT "x;y" FROM t`,
			want:   []string{"SELECT 'a;b'", `SELECT "x;y" FROM t`},
		},
		{
			name:   "escaped quote in literal",
			script: "SELECT 'it''s'; SELECT 2",
			want:   []string{"SELECT 'it''s'", "SELECT 2"},
		},
		{
			name:   "transaction control is split",
			script: "BEGIN; UPDATE t SET x=1 WHERE id=1; SELECT 1/0; COMMIT;",
			want:   []string{"BEGIN", "UPDATE t SET x=1 WHERE id=1", "SELECT 1/0", "COMMIT"},
		},
		{
			name:   "dollar quoted function body",
			script: "CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql; SELECT f();",
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql",
				"SELECT f()",
			},
		},
		{
			name:   "anonymous dollar quote in DO block",
			script: "DO $$ BEGIN PERFORM 1; END $$",
			want:   []string{"DO $$ BEGIN PERFORM 1; END $$"},
		},
		{
			name:   "anonymous dollar quote literal",
			script: "SELECT $$a;b$$; SELECT 2",
			want:   []string{"SELECT $$a;b$$", "SELECT 2"},
		},
		{
			name:   "tagged dollar quote",
			script: "DO $body$ BEGIN PERFORM 1; END $body$; SELECT 1",
			want:   []string{"DO $body$ BEGIN PERFORM 1; END $body$", "SELECT 1"},
		},
		{
			name:   "comment markers inside dollar body are kept",
			script: "DO $$ BEGIN -- keep; me\n PERFORM 1; END $$;",
			want:   []string{"DO $$ BEGIN -- keep; me\n PERFORM 1; END $$"},
		},
		{
			name: "begin atomic block",
			script: "CREATE PROCEDURE p() LANGUAGE SQL BEGIN ATOMIC INSERT INTO t VALUES (1); " +
				"UPDATE t SET x = CASE WHEN x > 0 THEN 1 ELSE 0 END WHERE id = 1; END; SELECT 1",
			want: []string{
				"CREATE PROCEDURE p() LANGUAGE SQL BEGIN ATOMIC INSERT INTO t VALUES (1); " +
					"UPDATE t SET x = CASE WHEN x > 0 THEN 1 ELSE 0 END WHERE id = 1; END",
				"SELECT 1",
			},
		},
		{
			name:   "begin used as an identifier",
			script: "CREATE TABLE t (begin int); SELECT begin FROM t;",
			want:   []string{"CREATE TABLE t (begin int)", "SELECT begin FROM t"},
		},
		{
			name:   "escape string with backslash quote",
			script: `SELECT E'it\'s; x'; SELECT 2`,
			want:   []string{`SELECT E'it\'s; x'`, "SELECT 2"},
		},
		{
			name:   "empty statements are skipped",
			script: "SELECT 1;;  ; SELECT 2",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sqlscript.Split(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	for _, script := range []string{"", "   \n\t", "-- only a comment", "/* nothing */", ";;"} {
		_, err := sqlscript.Split(script)
		require.ErrorIs(t, err, sqlscript.ErrEmptyQuery, "script %q", script)
		assert.True(t, sqlscript.IsValidationError(err))
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	scripts := []string{
		"SELECT 1; SELECT 2; SELECT 3",
		"INSERT INTO a VALUES (1);\n-- c\nINSERT INTO b VALUES (2);\nDELETE FROM c WHERE id = 3",
		"BEGIN; SELECT 'x;y'; DO $$ BEGIN NULL; END $$; COMMIT",
	}

	for _, script := range scripts {
		stmts, err := sqlscript.Split(script)
		require.NoError(t, err)

		pos := 0
		for _, stmt := range stmts {
			require.NotEmpty(t, stmt)
			idx := strings.Index(script[pos:], stmt)
			require.GreaterOrEqual(t, idx, 0, "statement %q out of order in %q", stmt, script)
			pos += idx + len(stmt)
		}
	}
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "SELECT 1", sqlscript.Abbreviate("SELECT\n   1", 20))
	assert.Equal(t, "SELECT ...", sqlscript.Abbreviate("SELECT a, b, c FROM t", 10))
}
