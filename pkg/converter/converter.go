package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/model"
)

// Dialect selects the SQL flavour used when rendering column types
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectSnowflake Dialect = "snowflake"
)

// TypeConverter maps destination column metadata onto dialect-specific DDL
type TypeConverter struct {
	logger  *zap.Logger
	dialect Dialect
}

// NewTypeConverter creates a new TypeConverter for the given dialect
func NewTypeConverter(logger *zap.Logger, dialect Dialect) *TypeConverter {
	return &TypeConverter{
		logger:  logger,
		dialect: dialect,
	}
}

// ColumnType renders the SQL type of a column for the converter's dialect
func (c *TypeConverter) ColumnType(col model.Column) (string, error) {
	switch col.Kind {
	case model.KindText:
		if col.Size <= 0 {
			if c.dialect == DialectMySQL {
				return "TEXT", nil
			}
			return "VARCHAR", nil
		}
		return fmt.Sprintf("VARCHAR(%d)", col.Size), nil
	case model.KindInteger:
		if c.dialect == DialectSnowflake {
			return "NUMBER(10,0)", nil
		}
		return "INTEGER", nil
	case model.KindDate:
		return "DATE", nil
	default:
		c.logger.Warn("Unknown column kind encountered",
			zap.String("column", col.Name),
			zap.Int("kind", int(col.Kind)))
		return "", fmt.Errorf("unknown column kind %d for %s", col.Kind, col.Name)
	}
}

// GenerateColumnDefinitions creates column definitions for a CREATE TABLE statement
func (c *TypeConverter) GenerateColumnDefinitions(metadata *model.TableMetadata) ([]string, error) {
	definitions := make([]string, 0, len(metadata.Columns)+1)

	for _, col := range metadata.Columns {
		sqlType, err := c.ColumnType(col)
		if err != nil {
			return nil, err
		}

		nullability := "NULL"
		if col.IsPrimaryKey || !col.Nullable {
			nullability = "NOT NULL"
		}

		definitions = append(definitions, fmt.Sprintf("%s %s %s",
			c.QuoteIdentifier(col.Name),
			sqlType,
			nullability))
	}

	if len(metadata.PrimaryKeys) > 0 {
		keys := make([]string, len(metadata.PrimaryKeys))
		for i, k := range metadata.PrimaryKeys {
			keys[i] = c.QuoteIdentifier(k)
		}
		definitions = append(definitions, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
	}

	return definitions, nil
}

// QuoteIdentifier quotes and escapes an identifier for the converter's dialect
func (c *TypeConverter) QuoteIdentifier(name string) string {
	if c.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	if c.dialect == DialectSnowflake {
		// Snowflake folds unquoted identifiers to upper case
		return `"` + strings.ToUpper(strings.ReplaceAll(name, `"`, `""`)) + `"`
	}
	return `"` + strings.ToLower(strings.ReplaceAll(name, `"`, `""`)) + `"`
}
