package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverLibSQL   DatabaseDriver = "libsql"
)

// DatabaseConnection holds the metadata for connecting to a relational or
// document store. Passwords are resolved through a SecretStore by PasswordKey.
type DatabaseConnection struct {
	Name        string         `json:"name"`
	Driver      DatabaseDriver `json:"driver"`
	Host        string         `json:"host"`     // hostname, file path (sqlite) or URL (libsql)
	Port        int            `json:"port"`     // 0 for file-backed drivers
	Database    string         `json:"database"` // db name or empty for sqlite
	Username    string         `json:"username"`
	PasswordKey string         `json:"passwordKey,omitempty"`
	SSLMode     string         `json:"sslMode"`
}

// WriteMode decides what happens to an existing table on load.
type WriteMode string

const (
	WriteReplace WriteMode = "replace" // drop, recreate from the frame's schema, insert
	WriteAppend  WriteMode = "append"  // insert into a table with identical columns
)

// Valid reports whether m is a known mode.
func (m WriteMode) Valid() bool {
	return m == WriteReplace || m == WriteAppend
}
