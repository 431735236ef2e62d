package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

// writeResult renders data as JSON or YAML, or hands it to text for the
// default format.
func writeResult(w io.Writer, format string, data any, text func(io.Writer) error) error {
	switch outputFormat(format) {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case formatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case formatText:
		return text(w)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
