package cmd

import (
	"context"
	"io"

	"github.com/rotisserie/eris"

	"property-scraper/config"
	"property-scraper/storage"
)

// buildSinks opens every backend named in STORAGE and combines them.
func buildSinks(ctx context.Context, c *config.Config, stdout io.Writer) (storage.RecordSink, error) {
	var sinks []storage.RecordSink
	fail := func(err error) (storage.RecordSink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	for _, name := range c.Storage {
		switch name {
		case "stdout":
			sinks = append(sinks, storage.NewJSONLinesSink(stdout))
		case "csv":
			w, err := storage.NewCSVWriter(c.CSVOutputPath)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, w)
		case "postgres":
			pw, err := storage.NewPostgresWriter(ctx, c.DSN())
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, pw)
		case "rabbitmq":
			p, err := storage.NewRabbitMQPublisher(storage.RabbitMQOptions{
				URL:        c.RabbitURL,
				Exchange:   c.RabbitExchange,
				RoutingKey: c.RabbitRouting,
			})
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, p)
		default:
			return fail(eris.Errorf("unknown storage %q (want postgres, csv, rabbitmq or stdout)", name))
		}
	}
	if len(sinks) == 0 {
		return nil, eris.New("no storage configured")
	}
	return storage.NewFanOut(sinks...), nil
}
