package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/estimote/attachments-migration/internal/tracing"
	"github.com/ubuntu/decorate"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome is what UpsertAttachment did to the attachment of a device.
type Outcome int

const (
	// Created means a new attachment was created for the device.
	Created Outcome = iota
	// Updated means the existing attachment of the device was patched with the merged payload.
	Updated
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// attachmentsList is the body of the attachments search.
type attachmentsList struct {
	Data []struct {
		ID      any            `json:"id"`
		Payload map[string]any `json:"payload"`
	} `json:"data"`
}

// newAttachmentRequest is the body sent to create an attachment.
type newAttachmentRequest struct {
	Data newAttachment `json:"data"`
}

type newAttachment struct {
	Payload    Payload `json:"payload"`
	Identifier string  `json:"identifier"`
	For        string  `json:"for"`
}

// updateAttachmentRequest is the body sent to replace the payload of an attachment.
type updateAttachmentRequest struct {
	Data updateAttachment `json:"data"`
}

type updateAttachment struct {
	Payload Payload `json:"payload"`
}

// dryRunAttachments records, per device, the attachment a dry run would have left in the cloud.
type dryRunAttachments struct {
	mu       sync.Mutex
	byDevice map[string]Attachment
}

func newDryRunAttachments() *dryRunAttachments {
	return &dryRunAttachments{byDevice: make(map[string]Attachment)}
}

func (s *dryRunAttachments) get(deviceID string) (Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byDevice[deviceID]
	return a, ok
}

func (s *dryRunAttachments) set(deviceID string, a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byDevice[deviceID] = a
}

// FindAttachment returns the first attachment assigned to deviceID, if any.
func (c Client) FindAttachment(ctx context.Context, deviceID string) (a Attachment, found bool, err error) {
	ctx, span := tracer.Start(ctx, "find-attachment")
	span.SetAttributes(attribute.String("device", deviceID))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
	defer decorate.OnError(&err, "failed to look up attachment of device %s", deviceID)

	u := c.endpoint(url.Values{"identifiers": []string{deviceID}}, "v3", "attachments")
	data, err := c.send(ctx, http.MethodGet, u, nil, isOK)
	if err != nil {
		return Attachment{}, false, err
	}

	var res attachmentsList
	if err := decodeJSON(data, &res); err != nil {
		return Attachment{}, false, fmt.Errorf("failed to unmarshal attachments: %v", err)
	}

	if len(res.Data) == 0 {
		c.log.Debug("No existing attachment", "device", deviceID)
		return Attachment{}, false, nil
	}

	first := res.Data[0]
	if first.ID == nil || fmt.Sprint(first.ID) == "" {
		return Attachment{}, false, fmt.Errorf("existing attachment has no id")
	}

	payload := Payload{}
	if first.Payload != nil {
		if payload, err = DecodePayload(first.Payload); err != nil {
			return Attachment{}, false, fmt.Errorf("existing attachment has an invalid payload: %w", err)
		}
	}

	a = Attachment{ID: fmt.Sprint(first.ID), Payload: payload}
	c.log.Debug("Found existing attachment", "device", deviceID, "attachment", a.ID)
	return a, true, nil
}

// UpsertAttachment assigns payload to the attachment of deviceID.
//
// If the device already has an attachment, its payload is merged with payload, payload taking
// precedence, and the attachment is updated. Otherwise a new attachment is created.
// A confirmation message is printed once the cloud accepted the change.
//
// In dry run, the attachment is still looked up remotely but assignments made earlier by the same
// client take precedence, so that successive upserts on a device merge and report as they would
// have against the cloud.
func (c Client) UpsertAttachment(ctx context.Context, deviceID string, payload Payload) (o Outcome, err error) {
	ctx, span := tracer.Start(ctx, "upsert-attachment")
	span.SetAttributes(attribute.String("device", deviceID))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	existing, found, err := c.FindAttachment(ctx, deviceID)
	if err != nil {
		return o, err
	}
	if c.dryRun {
		if a, ok := c.simulated.get(deviceID); ok {
			existing, found = a, true
		}
	}

	if found {
		merged := MergePayloads(existing.Payload, payload)
		if err := c.updateAttachment(ctx, existing.ID, deviceID, merged); err != nil {
			return o, err
		}
		span.SetAttributes(attribute.Stringer("outcome", Updated))
		return Updated, nil
	}

	if err := c.createAttachment(ctx, deviceID, payload); err != nil {
		return o, err
	}
	span.SetAttributes(attribute.Stringer("outcome", Created))
	return Created, nil
}

func (c Client) createAttachment(ctx context.Context, deviceID string, payload Payload) (err error) {
	defer decorate.OnError(&err, "failed to create attachment for device %s", deviceID)

	body := newAttachmentRequest{Data: newAttachment{Payload: payload, Identifier: deviceID, For: "device"}}
	if c.dryRun {
		c.log.Info("Dry run, skipping attachment creation", "device", deviceID, "payload", payload)
		c.simulated.set(deviceID, Attachment{Payload: payload})
		c.confirm(deviceID, payload)
		return nil
	}

	if _, err := c.send(ctx, http.MethodPost, c.endpoint(nil, "v3", "attachments"), body, isSuccess); err != nil {
		return err
	}

	c.confirm(deviceID, payload)
	return nil
}

func (c Client) updateAttachment(ctx context.Context, attachmentID, deviceID string, payload Payload) (err error) {
	defer decorate.OnError(&err, "failed to update attachment %s of device %s", attachmentID, deviceID)

	body := updateAttachmentRequest{Data: updateAttachment{Payload: payload}}
	if c.dryRun {
		c.log.Info("Dry run, skipping attachment update", "device", deviceID, "attachment", attachmentID, "payload", payload)
		c.simulated.set(deviceID, Attachment{ID: attachmentID, Payload: payload})
		c.confirm(deviceID, payload)
		return nil
	}

	if _, err := c.send(ctx, http.MethodPatch, c.endpoint(nil, "v3", "attachments", attachmentID), body, isSuccess); err != nil {
		return err
	}

	c.confirm(deviceID, payload)
	return nil
}

// confirm prints the human readable confirmation of an assignment.
func (c Client) confirm(deviceID string, payload Payload) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	prefix := "Successfully assigned"
	if c.dryRun {
		prefix = "Would assign"
	}
	fmt.Fprintf(c.out, "%s attachment %s to device %s\n", prefix, payload, deviceID)
}
