package factory

import (
	"fmt"

	"github.com/meterdock/meterdock/internal/history"
	"github.com/meterdock/meterdock/internal/history/clickhouse"
	"github.com/meterdock/meterdock/internal/history/opensearch"
)

// New builds history sinks from configuration.
func New(cfgs []history.SinkConfig) ([]history.Sink, error) {
	sinks := make([]history.Sink, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case "clickhouse":
			s, err := clickhouse.New(c.DSN, c.Table)
			if err != nil {
				return nil, fmt.Errorf("clickhouse sink: %w", err)
			}
			sinks = append(sinks, s)
		case "opensearch":
			if c.URL == "" {
				return nil, fmt.Errorf("opensearch sink requires url")
			}
			sinks = append(sinks, opensearch.New(c.URL, c.Index))
		default:
			return nil, fmt.Errorf("unknown history sink type %q", c.Type)
		}
	}
	return sinks, nil
}
