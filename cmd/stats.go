package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pgknex/internal/classify"
	"pgknex/internal/extract"
	"pgknex/internal/verify"
)

var statsCmd = &cobra.Command{
	Use:   "stats <input.sql>",
	Short: "Show the entity statistics of a schema dump without generating anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if f, _ := cmd.Flags().GetString("report"); f != "" {
			viper.Set("report.format", f)
		}
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		model, warns, err := extract.Parse(string(src), extract.Options{Exclude: excludeSet()})
		if err != nil {
			return err
		}
		for _, w := range warns {
			log.Printf("warning: %v", w)
		}
		for _, w := range model.Link(classify.Enum) {
			log.Printf("warning: %v", w)
		}

		stats := verify.ModelStats(model)
		if viper.GetString("report.format") == "yaml" {
			out, err := yaml.Marshal(stats)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
		} else {
			fmt.Print(stats.Text())
		}

		if len(model.Dropped) > 0 {
			fmt.Println("\ndropped entities:")
			for _, d := range model.Dropped {
				fmt.Println("  -", d)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("report", "", "report format: text or yaml")
	rootCmd.AddCommand(statsCmd)
}
