package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// execFunc runs one migration unit against a database.
type execFunc func(ctx context.Context, sql string) error

// sqlFiles lists the .sql files of dir in lexical order.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs every file of dir through exec. With split set, each file is
// cut into single statements first. Migrations are expected to be idempotent.
func apply(ctx context.Context, fsys fs.FS, dir string, split bool, exec execFunc) (int, error) {
	files, err := sqlFiles(fsys, dir)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := string(data)
		if strings.TrimSpace(body) == "" {
			continue
		}

		units := []string{body}
		if split {
			if err := validateNoSemicolonInStrings(body); err != nil {
				return applied, fmt.Errorf("validate migration %s: %w", file, err)
			}
			units = splitStatements(body)
		}

		for _, unit := range units {
			if err := exec(ctx, unit); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", file, err)
			}
		}

		log.Info().Str("database", dir).Str("file", file).Msg("Applied migration")
		applied++
	}
	return applied, nil
}

// splitStatements splits SQL content into statements by semicolon.
// It skips -- comment lines and does not understand quoting, so
// migrations must not put semicolons inside string literals.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(filtered, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a
// single-quoted literal, which splitStatements would cut in half.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}
