package doc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/elciao/elciao/el-service/metrics"
)

type Metrics interface {
	Document() []metrics.DocumentedMetric
}

func NewSubcommands(m Metrics) cli.Commands {
	return cli.Commands{
		{
			Name:  "metrics",
			Usage: "Dumps a list of supported metrics to stdout",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "format",
					Value: "markdown",
					Usage: "Output format (json|markdown)",
				},
			},
			Action: func(ctx *cli.Context) error {
				supportedMetrics := m.Document()
				format := ctx.String("format")

				if format != "markdown" && format != "json" {
					return fmt.Errorf("invalid format: %s", format)
				}

				if format == "json" {
					enc := json.NewEncoder(ctx.App.Writer)
					return enc.Encode(supportedMetrics)
				}

				var b strings.Builder
				b.WriteString("| Metric | Type | Description | Labels |\n")
				b.WriteString("|--------|------|-------------|--------|\n")
				for _, metric := range supportedMetrics {
					labels := strings.Join(metric.Labels, ",")
					fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", metric.Name, metric.Type, metric.Help, labels)
				}
				_, err := fmt.Fprint(ctx.App.Writer, b.String())
				return err
			},
		},
	}
}
