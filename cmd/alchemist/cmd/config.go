package cmd

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alchemist-av/alchemist/internal/config"
	"github.com/alchemist-av/alchemist/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the effective configuration in YAML format, after merging the
config file, environment variables and defaults. Credentials embedded in
the database DSN are redacted.

Redirect the output to a file to create a configuration template:

  alchemist config > alchemist.yaml

Configuration can be set via:
  - Config file (alchemist.yaml in ., ~/.config/alchemist, /etc/alchemist)
  - Environment variables with the ALCHEMIST_ prefix
  - Command-line flags (for some options)

Environment variables use underscores for nesting.
Example: server.port -> ALCHEMIST_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg.Database.DSN = redactDSN(cfg.Database.DSN)

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# alchemist configuration")
	fmt.Println("# =======================")
	fmt.Println("#")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 500MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the ALCHEMIST_ prefix:")
	fmt.Println("#   ALCHEMIST_SERVER_PORT, ALCHEMIST_DATABASE_DSN,")
	fmt.Println("#   ALCHEMIST_SCANNER_ROOTS, ALCHEMIST_LOGGING_LEVEL, etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

// redactDSN masks credentials embedded in a DSN while leaving plain file
// paths readable.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	// mysql-style user:pass@tcp(host)/db
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		if colon := strings.Index(dsn[:at], ":"); colon > 0 {
			return dsn[:colon+1] + "xxxxx" + dsn[at:]
		}
	}
	return dsn
}
