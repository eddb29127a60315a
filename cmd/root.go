package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pgknex",
	Short: "Consolidate a PostgreSQL schema dump into one Knex-style baseline migration",
	Long: `pgknex reads a PostgreSQL schema dump (pg_dump --schema-only) and emits a
single consolidated baseline migration for AdonisJS/Knex projects.

Every extracted entity is counted, the generated migration text is re-counted
independently, and the two statistic sets must agree before any output is
written. CHECK constraints that enumerate string literals on one column are
converted to enum columns.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pgknex.yaml)")
	rootCmd.PersistentFlags().StringSlice("exclude", nil, "table names to exclude (repeatable)")
	viper.BindPFlag("exclude.tables", rootCmd.PersistentFlags().Lookup("exclude"))

	// The Adonis migration bookkeeping tables are never part of a baseline.
	viper.SetDefault("exclude.tables", []string{"adonis_schema", "adonis_schema_versions"})
	viper.SetDefault("generator.class_name", "BaselineMigration")
	viper.SetDefault("report.format", "text")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("pgknex")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// excludeSet resolves the configured exclusion list into a lookup set.
func excludeSet() map[string]bool {
	set := map[string]bool{}
	for _, name := range viper.GetStringSlice("exclude.tables") {
		set[name] = true
	}
	return set
}
