package player

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/framereplay/internal/player"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
