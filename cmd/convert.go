package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/gosuri/uiprogress"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pgknex/internal/classify"
	"pgknex/internal/extract"
	"pgknex/internal/generate"
	"pgknex/internal/verify"
)

var force bool

var convertCmd = &cobra.Command{
	Use:   "convert <input.sql> <output.ts>",
	Short: "Convert a schema dump into a baseline migration file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, output := args[0], args[1]
		if f, _ := cmd.Flags().GetString("report"); f != "" {
			viper.Set("report.format", f)
		}

		src, err := os.ReadFile(input)
		if err != nil {
			return err
		}

		program, result, err := runConversion(string(src))
		if err != nil {
			return err
		}

		report, err := renderReport(result)
		if err != nil {
			return err
		}
		fmt.Print(report)

		if !result.Passed {
			return verify.ErrVerificationFailed
		}

		if !force {
			if err := confirmOverwrite(output); err != nil {
				return err
			}
		}
		return os.WriteFile(output, []byte(program), 0o644)
	},
}

func init() {
	convertCmd.Flags().BoolVar(&force, "force", false, "overwrite the output file without asking")
	convertCmd.Flags().String("report", "", "report format: text or yaml")
	rootCmd.AddCommand(convertCmd)
}

// runConversion is the whole pipeline short of writing the file: extract,
// link, generate, verify. Non-fatal extraction and linking problems go to
// stderr as warnings; each is already booked as a dropped entity, so the
// verifier turns them into failures.
func runConversion(src string) (string, *verify.Result, error) {
	total, err := extract.CountStatements(src)
	if err != nil {
		return "", nil, err
	}

	uiprogress.Start()
	bar := uiprogress.AddBar(total).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return "Extracting: "
	})

	model, warns, err := extract.Parse(src, extract.Options{
		Exclude:  excludeSet(),
		Progress: func() { bar.Incr() },
	})
	uiprogress.Stop()
	if err != nil {
		return "", nil, err
	}
	for _, w := range warns {
		log.Printf("warning: %v", w)
	}
	for _, w := range model.Link(classify.Enum) {
		log.Printf("warning: %v", w)
	}

	program := generate.New(generate.Options{
		ClassName: viper.GetString("generator.class_name"),
	}).Generate(model)

	return program, verify.Run(model, program), nil
}

func renderReport(r *verify.Result) (string, error) {
	switch format := viper.GetString("report.format"); format {
	case "yaml":
		return r.YAML()
	case "", "text":
		return r.Text(), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

func confirmOverwrite(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s exists, overwrite", path),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return errors.New("aborted")
	}
	return nil
}
