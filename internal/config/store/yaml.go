package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ExportYAML writes the current bridge settings as a YAML document.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	cfg, err := s.LoadBridgeSettings(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	return enc.Close()
}

// ImportYAML overlays the document read from r onto the stored settings and
// saves the result. Keys missing from the document keep their current value;
// unknown keys are rejected.
func (s *Store) ImportYAML(ctx context.Context, r io.Reader) (BridgeSettings, error) {
	cfg, err := s.LoadBridgeSettings(ctx)
	if err != nil {
		return BridgeSettings{}, err
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return BridgeSettings{}, fmt.Errorf("config: decode yaml: %w", err)
	}

	if err := s.SaveBridgeSettings(ctx, cfg); err != nil {
		return BridgeSettings{}, err
	}
	return cfg, nil
}
