package usecase

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/arklim/srm-service/internal/usecase"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
