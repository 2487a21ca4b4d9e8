package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
)

// ErrInvalidPayload is returned when a value can't be decoded into an attachment payload.
var ErrInvalidPayload = errors.New("attachment payload must be a JSON object of scalar values")

// Device is a device registered in the cloud, as returned by the devices listing.
type Device struct {
	Identifier string   `json:"identifier"`
	ID         string   `json:"id"`
	Shadow     Shadow   `json:"shadow"`
	Settings   Settings `json:"settings"`
}

// Key returns the identifier attachments are assigned to.
// The devices listing names it "identifier"; "id" is used as a fallback.
func (d Device) Key() string {
	if d.Identifier != "" {
		return d.Identifier
	}
	return d.ID
}

// Shadow holds the legacy metadata of a device.
type Shadow struct {
	// Tags are serialized JSON documents, some of them embedding an "attachment" object.
	Tags []string `json:"tags"`
}

// Settings holds the broadcast configuration of a device.
type Settings struct {
	Advertisers Advertisers `json:"advertisers"`
}

// Advertisers lists the packets a device broadcasts.
type Advertisers struct {
	IBeacon []IBeacon `json:"ibeacon"`
}

// IBeacon is the configuration of one iBeacon advertiser.
type IBeacon struct {
	Enabled bool        `json:"enabled"`
	UUID    string      `json:"uuid"`
	Major   json.Number `json:"major"`
	Minor   json.Number `json:"minor"`
}

// Payload is the content of an attachment.
type Payload map[string]string

// String returns the payload as a JSON object with sorted keys.
func (p Payload) String() string {
	d, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]string(p))
	}
	return string(d)
}

// Attachment is an attachment stored in the cloud.
type Attachment struct {
	ID      string
	Payload Payload
}

// MergePayloads returns a new payload holding the keys of existing overwritten and extended by update.
// Keys only present in existing are preserved. Neither argument is modified.
func MergePayloads(existing, update Payload) Payload {
	merged := make(Payload, len(existing)+len(update))
	maps.Copy(merged, existing)
	maps.Copy(merged, update)
	return merged
}

// DecodePayload decodes a JSON object, as produced by encoding/json, into a Payload.
//
// Scalar values are converted to their textual form: numbers keep their decimal representation,
// booleans become "true" or "false" and null becomes an empty string.
// Nested objects and arrays are rejected.
func DecodePayload(raw any) (p Payload, err error) {
	// Weak decoding would otherwise merge a list of objects into a single map.
	if raw == nil || reflect.TypeOf(raw).Kind() != reflect.Map {
		return nil, ErrInvalidPayload
	}

	p = Payload{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       boolToStringHook,
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	return p, nil
}

// boolToStringHook keeps booleans readable, where weak decoding would turn them into "1" or "0".
func boolToStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Bool || to.Kind() != reflect.String {
		return data, nil
	}
	b, ok := data.(bool)
	if !ok {
		return data, nil
	}
	return strconv.FormatBool(b), nil
}
