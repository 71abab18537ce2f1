package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentworkforce/homepage/internal/content"
	"github.com/agentworkforce/homepage/internal/contentsync"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var defaultsOnly bool
	cmd := &cobra.Command{
		Use:   "get <section>",
		Short: "Print a section merged onto its defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.session()
			if err != nil {
				return err
			}
			name := args[0]
			if name == content.Testimonials.Name {
				items, err := session.LoadTestimonials(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			}
			var doc content.Document
			if defaultsOnly {
				doc, err = session.Defaults(name)
			} else {
				doc, err = session.Load(cmd.Context(), name)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().BoolVar(&defaultsOnly, "defaults", false, "print the built-in defaults without contacting the store")
	return cmd
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "save <section>",
		Short: "Validate and save a section from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(file) == "" {
				return errors.New("--file is required")
			}
			doc, err := readDocument(cmd.InOrStdin(), file, format)
			if err != nil {
				return err
			}
			session, err := opts.session()
			if err != nil {
				return err
			}
			result, err := session.Save(cmd.Context(), args[0], doc)
			if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
				return printErr
			}
			if err != nil {
				if contentsync.KindOf(err) == contentsync.KindValidation && len(result.Fields) > 0 {
					return fmt.Errorf("save rejected, check fields: %s", strings.Join(result.Fields, ", "))
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document file, or - for stdin")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (defaults to the file extension)")
	return cmd
}

// readDocument decodes a JSON or YAML object. YAML is re-encoded through JSON
// so numbers and maps have the same shapes as a JSON document.
func readDocument(stdin io.Reader, path, format string) (content.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}
	switch format {
	case "json":
	case "yaml", "yml":
		var decoded map[string]any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if data, err = json.Marshal(decoded); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	var doc content.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if doc == nil {
		return nil, errors.New("document must be an object")
	}
	return doc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
