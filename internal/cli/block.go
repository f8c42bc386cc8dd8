package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/store"
	"github.com/neoclaw-ai/tagbot/internal/tagblock"
	"github.com/spf13/cobra"
)

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "block",
		Short:       "Decode, strip or rewrite the tag block of a caption read from stdin",
		Annotations: offline(),
	}
	cmd.AddCommand(newBlockDecodeCmd())
	cmd.AddCommand(newBlockStripCmd())
	cmd.AddCommand(newBlockEncodeCmd())
	return cmd
}

func newBlockDecodeCmd() *cobra.Command {
	var fieldsPath string
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Print the tag values and block generation as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := loadFields(fieldsPath)
			if err != nil {
				return err
			}
			text, err := readInput(cmd)
			if err != nil {
				return err
			}
			out := struct {
				Generation string                    `json:"generation"`
				Tags       map[string]tagblock.Value `json:"tags"`
			}{
				Generation: tagblock.Detect(text).String(),
				Tags:       tagblock.Decode(text, fields),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "JSON file with the field list or a chat config")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func newBlockStripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strip",
		Short: "Print the caption with every tag block removed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readInput(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tagblock.Strip(text))
			return err
		},
	}
}

func newBlockEncodeCmd() *cobra.Command {
	var (
		fieldsPath string
		valuesPath string
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Replace the caption's tag block with one built from --values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := loadFields(fieldsPath)
			if err != nil {
				return err
			}
			var values map[string]string
			if err := store.ReadJSON(valuesPath, &values); err != nil {
				return fmt.Errorf("read values: %w", err)
			}
			text, err := readInput(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tagblock.Retag(text, values, fields))
			return err
		},
	}
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "JSON file with the field list or a chat config")
	cmd.Flags().StringVar(&valuesPath, "values", "", "JSON object of field key to value")
	_ = cmd.MarkFlagRequired("fields")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

// loadFields accepts either a bare field array or a stored chat config.
func loadFields(path string) ([]tagblock.Field, error) {
	raw, err := store.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fields: %w", err)
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var fields []tagblock.Field
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("decode fields %q: %w", path, err)
		}
		return fields, nil
	}

	var cfg chatconfig.ChatConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode chat config %q: %w", path, err)
	}
	if len(cfg.Fields) == 0 {
		return nil, errors.New("chat config has no fields")
	}
	return cfg.Descriptors(), nil
}

func readInput(cmd *cobra.Command) (string, error) {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(raw), "\n"), nil
}
