package cloud

import (
	"context"
	"fmt"
	"net/http"

	"github.com/estimote/attachments-migration/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// ListDevices returns every device of the application, in the order the cloud lists them.
func (c Client) ListDevices(ctx context.Context) (devices []Device, err error) {
	ctx, span := tracer.Start(ctx, "list-devices")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	c.log.Info("Listing devices", "server", c.baseURL.Redacted())

	data, err := c.send(ctx, http.MethodGet, c.endpoint(nil, "v2", "devices"), nil, isOK)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if err := decodeJSON(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %v", err)
	}

	span.SetAttributes(attribute.Int("devices", len(devices)))
	c.log.Info("Listed devices", "count", len(devices))

	return devices, nil
}
