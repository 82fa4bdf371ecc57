package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"lockgate/internal/lockout/models"
)

// validSQLIdentifier restricts the configurable table and column names.
// They come from trusted configuration, but this keeps a typo from turning
// into SQL injection.
var validSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Postgres resolves subjects of one kind from a table whose login-field
// column holds the identifier.
type Postgres struct {
	db    *sql.DB
	kind  string
	query string
}

// NewPostgres constructs a resolver for the given kind over table.column.
func NewPostgres(db *sql.DB, kind, table, loginField string) (*Postgres, error) {
	if !validSQLIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid subject table name %q", table)
	}
	if !validSQLIdentifier.MatchString(loginField) {
		return nil, fmt.Errorf("invalid login field name %q", loginField)
	}

	return &Postgres{
		db:    db,
		kind:  kind,
		query: fmt.Sprintf(`SELECT id, %s FROM %s WHERE %s = $1 LIMIT 1`, loginField, table, loginField),
	}, nil
}

func (p *Postgres) FindByIdentifier(ctx context.Context, identifier string) (models.Subject, error) {
	var id uuid.UUID
	var value string
	if err := p.db.QueryRowContext(ctx, p.query, identifier).Scan(&id, &value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s by identifier: %w", p.kind, err)
	}

	return models.BasicSubject{
		SubjectKind: p.kind,
		SubjectID:   id,
		Identifier:  value,
	}, nil
}
