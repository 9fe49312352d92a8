package pgtool

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// Tool names used across the lifecycle manager and the operations bridge.
const (
	ToolInitDB = "initdb"
	ToolPgCtl  = "pg_ctl"
	ToolPsql   = "psql"
	ToolPgDump = "pg_dump"
)

// Resolver locates PostgreSQL client binaries. An explicitly supplied BinDir
// wins (embedded mode); otherwise a small set of conventional installation
// locations is probed, newest version first; and when nothing matches the
// bare tool name is returned so the invoking environment's PATH decides.
type Resolver struct {
	BinDir string
}

var conventionalGlobs = map[string][]string{
	"linux": {
		"/usr/lib/postgresql/*/bin",
		"/usr/pgsql-*/bin",
		"/usr/local/pgsql/bin",
	},
	"darwin": {
		"/opt/homebrew/opt/postgresql@*/bin",
		"/usr/local/opt/postgresql@*/bin",
		"/Applications/Postgres.app/Contents/Versions/*/bin",
	},
	"windows": {
		`C:\Program Files\PostgreSQL\*\bin`,
	},
}

// Path returns the resolved absolute path for the named tool, or the bare
// name when no conventional location holds it.
func (r Resolver) Path(tool string) string {
	name := tool
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if r.BinDir != "" {
		return filepath.Join(r.BinDir, name)
	}
	for _, dir := range candidateDirs() {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return tool
}

func candidateDirs() []string {
	globs := conventionalGlobs[runtime.GOOS]
	var dirs []string
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			continue
		}
		// Highest version (lexically last) first.
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		dirs = append(dirs, matches...)
	}
	return dirs
}
