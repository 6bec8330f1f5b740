package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var (
	createOrder  int
	createCorpus string
	createFile   string

	importOrder int
	importFile  string

	addCorpus string
	addFile   string

	genCount       int
	genMaxLength   int
	genTemperature float64
	genTopK        int

	exportOut string
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Train a new model from a corpus",
	Long:  "Creates a model of the given order. Without a name, one is derived from the corpus.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCreate,
}

var importCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Store a model from an exported table",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add sentences to an existing model",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var generateCmd = &cobra.Command{
	Use:     "generate <name>",
	Aliases: []string{"gen"},
	Short:   "Generate sentences from a model",
	Args:    cobra.ExactArgs(1),
	RunE:    runGenerate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a model's metadata and statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Print or save a model's serialized table",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	createCmd.Flags().IntVarP(&createOrder, "order", "o", 1, "Number of preceding tokens each prediction depends on")
	createCmd.Flags().StringVar(&createCorpus, "corpus", "", "Corpus text")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Read the corpus from a file (- for stdin)")

	importCmd.Flags().IntVarP(&importOrder, "order", "o", 1, "Order of the exported model")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "-", "Exported table to read (- for stdin)")

	addCmd.Flags().StringVar(&addCorpus, "corpus", "", "Corpus text")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "Read the corpus from a file (- for stdin)")

	generateCmd.Flags().IntVarP(&genCount, "count", "n", 1, "Number of sentences")
	generateCmd.Flags().IntVar(&genMaxLength, "max-length", 0, "Maximum tokens per sentence (0 uses the config)")
	generateCmd.Flags().Float64Var(&genTemperature, "temperature", -1, "Sampling temperature (negative uses the config)")
	generateCmd.Flags().IntVar(&genTopK, "top-k", 0, "Only sample from the k most frequent followers (0 uses the config)")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write to this file instead of stdout")
}

func runCreate(cmd *cobra.Command, args []string) error {
	corpus, err := readCorpus(createCorpus, createFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		info, err := svc.Create(ctx, name, createOrder, corpus)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %q (order %d, size %d)\n", info.Name, info.Order, info.Size)
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if importFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(importFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		info, err := svc.Import(ctx, args[0], importOrder, string(bytes.TrimSpace(data)))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %q (order %d, size %d)\n", info.Name, info.Order, info.Size)
		return nil
	})
}

func runAdd(cmd *cobra.Command, args []string) error {
	corpus, err := readCorpus(addCorpus, addFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(corpus) == "" {
		return fmt.Errorf("nothing to add: pass --corpus or --file")
	}
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		info, err := svc.AddCorpus(ctx, args[0], corpus)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %q (size %d)\n", info.Name, info.Size)
		return nil
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genCount <= 0 {
		return fmt.Errorf("--count must be at least 1")
	}
	params := GenerateParams{Count: genCount, MaxLength: genMaxLength, TopK: genTopK}
	if genTemperature >= 0 {
		t := genTemperature
		params.Temperature = &t
	}
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		sentences, err := svc.Generate(ctx, args[0], params)
		if err != nil {
			return err
		}
		for _, s := range sentences {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		models, err := svc.List(ctx)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no models")
			return nil
		}
		for _, m := range models {
			fmt.Fprintf(cmd.OutOrStdout(), "%-32s order=%d size=%d updated=%s\n",
				m.Name, m.Order, m.Size, m.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		info, err := svc.Get(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		serialized, err := svc.Export(ctx, args[0])
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), serialized)
			return nil
		}
		if err = atomic.WriteFile(exportOut, strings.NewReader(serialized)); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %q to %s\n", args[0], exportOut)
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *ModelService) error {
		if err := svc.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
		return nil
	})
}
