package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/estimote/attachments-migration/internal/cloud"
)

var (
	// ErrMalformedTag is returned when a tag mentions an attachment that can't be extracted.
	ErrMalformedTag = errors.New("malformed attachment tag")
	// ErrIncompleteIBeacon is returned when an iBeacon advertiser lacks its UUID, major or minor.
	ErrIncompleteIBeacon = errors.New("incomplete iBeacon advertiser")
)

// attachmentField is the tag field holding a legacy attachment payload.
const attachmentField = "attachment"

// ParseTag extracts the attachment payload embedded in a legacy tag.
//
// ok is false when the tag carries no attachment, which includes plain text tags.
// A tag that mentions an attachment but is not a JSON object with an "attachment" object of
// scalar values returns an error wrapping ErrMalformedTag.
func ParseTag(tag string) (p cloud.Payload, ok bool, err error) {
	var fields map[string]any

	d := json.NewDecoder(strings.NewReader(tag))
	d.UseNumber()
	err = d.Decode(&fields)
	if err == nil {
		if _, tokErr := d.Token(); tokErr != io.EOF {
			err = errors.New("unexpected data after the tag object")
		}
	}
	if err != nil {
		if !strings.Contains(tag, attachmentField) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedTag, err)
	}

	raw, ok := fields[attachmentField]
	if !ok {
		return nil, false, nil
	}

	p, err = cloud.DecodePayload(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedTag, err)
	}

	return p, true, nil
}

// IBeaconPayload synthesizes the attachment payload describing an iBeacon advertiser.
//
// Every identifier is required: an advertiser with an empty UUID, major or minor returns an
// error wrapping ErrIncompleteIBeacon.
func IBeaconPayload(ib cloud.IBeacon) (cloud.Payload, error) {
	major, minor := ib.Major.String(), ib.Minor.String()

	var missing []string
	for _, f := range []struct{ name, value string }{{"uuid", ib.UUID}, {"major", major}, {"minor", minor}} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteIBeacon, strings.Join(missing, ", "))
	}

	return cloud.Payload{
		"uuid":             ib.UUID,
		"uuid:major":       strings.Join([]string{ib.UUID, major}, ":"),
		"uuid:major:minor": strings.Join([]string{ib.UUID, major, minor}, ":"),
	}, nil
}
