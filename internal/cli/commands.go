package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/service"
)

func (c *CLI) newTemplatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates [query]",
		Short: "List available form templates",
		Args:  cobra.MaximumNArgs(1),
		Example: `  formfill templates
  formfill templates w-9 --templates ./forms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			result, err := svc.Templates(query)
			if err != nil {
				return fmt.Errorf("list templates: %w", err)
			}
			slog.Debug("Listed templates", "query", query, "count", result.TotalCount)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func (c *CLI) newFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "fields <template-id>",
		Short:   "List the fillable fields of a template document",
		Args:    cobra.ExactArgs(1),
		Example: `  formfill fields w9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			result, err := svc.Fields(args[0])
			if err != nil {
				return err
			}
			if len(result.UnknownTargets) > 0 {
				slog.Warn("Mapping targets without a field", "template", result.TemplateID, "targets", result.UnknownTargets)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func (c *CLI) newSchemaCommand() *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "schema <template-id>",
		Short: "Print the widget schema of a template",
		Args:  cobra.ExactArgs(1),
		Example: `  formfill schema w9
  formfill schema w9 --normalize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			result, err := svc.Schema(service.SchemaRequest{TemplateID: args[0], Normalize: normalize})
			if err != nil {
				return err
			}
			slog.Debug("Loaded schema", "template", result.TemplateID, "source", result.Source)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "Give container fields the rects of their descendants")
	return cmd
}

func (c *CLI) newResolveCommand() *cobra.Command {
	var (
		dataFile string
		dump     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <template-id>",
		Short: "Resolve form data to field values without writing a document",
		Args:  cobra.ExactArgs(1),
		Example: `  formfill resolve w9 --data answers.json
  cat answers.json | formfill resolve w9 --data - --dump`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(dataFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}

			result, err := svc.Resolve(cmd.Context(), service.ResolveRequest{TemplateID: args[0], Data: data})
			if err != nil {
				return err
			}
			logWarnings(result.TemplateID, len(result.Warnings))

			if dump {
				spew.Fdump(cmd.OutOrStdout(), result)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "Form data file (JSON or YAML, - for stdin)")
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the Go value of the result instead of JSON")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (c *CLI) newRenderCommand() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "render <template-id>",
		Short: "Fill a template with form data and write the PDF",
		Args:  cobra.ExactArgs(1),
		Example: `  formfill render w9 --data answers.json
  formfill render w9 --data answers.yaml --output ./filled`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(dataFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}

			result, err := svc.Render(cmd.Context(), service.RenderRequest{TemplateID: args[0], Data: data})
			if err != nil {
				return err
			}
			logWarnings(result.TemplateID, len(result.Warnings))
			slog.Info("Rendered document", "template", result.TemplateID, "path", result.Path, "size", result.Size)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "Form data file (JSON or YAML, - for stdin)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (c *CLI) newLabelCommand() *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "label <template-id>",
		Short: "Write a copy of a template with every widget labeled by field name",
		Args:  cobra.ExactArgs(1),
		Example: `  formfill label w9
  formfill label w9 --normalize --output ./debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			result, err := svc.Label(cmd.Context(), service.SchemaRequest{TemplateID: args[0], Normalize: normalize})
			if err != nil {
				return err
			}
			slog.Info("Labeled document", "template", result.TemplateID, "path", result.Path, "labels", result.Labels)
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "Label container fields with the rects of their descendants")
	return cmd
}

func logWarnings(templateID string, count int) {
	if count > 0 {
		slog.Warn("Resolved with warnings", "template", templateID, "warnings", count)
	}
}

// readData loads form data from a JSON or YAML file; "-" reads stdin.
// Files without a .yaml or .yml extension are decoded as JSON.
func readData(path string, stdin io.Reader) (mapping.FormData, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	var data mapping.FormData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		err = dec.Decode(&data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode data %s: %w", path, err)
	}
	if data == nil {
		return nil, fmt.Errorf("data %s must be an object", path)
	}
	return data, nil
}
