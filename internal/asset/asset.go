// Package asset models tagged assets and devices and their single-table wire
// shape. The asset service stores both behind packed PK/SK keys; this package
// decodes them into typed values and re-encodes them losslessly.
package asset

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaItem declares one vendor/assetType pair a task expects per tag.
type SchemaItem struct {
	Vendor    string `json:"vendor"`
	AssetType string `json:"assetType"`
}

// Asset is a logical object attached to an integration, e.g. a Meraki network.
type Asset struct {
	TenantID         string
	AssetID          string
	IntegrationID    string
	IntegrationType  string
	VendorIdentifier string
	AssetType        string
	Attributes       map[string]any
}

// Device is a physical object attached to an integration.
type Device struct {
	TenantID        string
	DeviceID        string
	DeviceSerial    string
	DeviceModel     string
	IntegrationID   string
	IntegrationType string
	Attributes      map[string]any
}

type wireObject struct {
	PK         string         `json:"PK"`
	SK         string         `json:"SK"`
	SK1        string         `json:"SK1"`
	SK2        string         `json:"SK2"`
	Attributes map[string]any `json:"attributes"`
}

func splitSK(sk string) ([]string, error) {
	parts := strings.Split(sk, "#")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed SK %q: want 4 segments", sk)
	}
	return parts, nil
}

// MarshalJSON encodes the asset in its PK/SK wire shape.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireObject{
		PK:         a.TenantID,
		SK:         fmt.Sprintf("asset#%s#%s#%s", a.IntegrationType, a.IntegrationID, a.AssetID),
		SK1:        a.VendorIdentifier,
		SK2:        a.AssetType,
		Attributes: a.Attributes,
	})
}

// UnmarshalJSON decodes the PK/SK wire shape.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var wire wireObject
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	parts, err := splitSK(wire.SK)
	if err != nil {
		return err
	}
	if parts[0] != "asset" {
		return fmt.Errorf("SK %q is not an asset key", wire.SK)
	}
	a.TenantID = wire.PK
	a.IntegrationType = parts[1]
	a.IntegrationID = parts[2]
	a.AssetID = parts[3]
	a.VendorIdentifier = wire.SK1
	a.AssetType = wire.SK2
	a.Attributes = wire.Attributes
	return nil
}

// MarshalJSON encodes the device in its PK/SK wire shape.
func (d Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireObject{
		PK:         d.TenantID,
		SK:         fmt.Sprintf("device#%s#%s#%s", d.IntegrationType, d.IntegrationID, d.DeviceID),
		SK1:        d.DeviceSerial,
		SK2:        d.DeviceModel,
		Attributes: d.Attributes,
	})
}

// UnmarshalJSON decodes the PK/SK wire shape.
func (d *Device) UnmarshalJSON(data []byte) error {
	var wire wireObject
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	parts, err := splitSK(wire.SK)
	if err != nil {
		return err
	}
	if parts[0] != "device" {
		return fmt.Errorf("SK %q is not a device key", wire.SK)
	}
	d.TenantID = wire.PK
	d.IntegrationType = parts[1]
	d.IntegrationID = parts[2]
	d.DeviceID = parts[3]
	d.DeviceSerial = wire.SK1
	d.DeviceModel = wire.SK2
	d.Attributes = wire.Attributes
	return nil
}

// Object is either an Asset or a Device, distinguished by the SK prefix.
type Object struct {
	Asset  *Asset
	Device *Device
}

// UnmarshalJSON picks the variant from the SK prefix.
func (o *Object) UnmarshalJSON(data []byte) error {
	var probe struct {
		SK string `json:"SK"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(probe.SK, "asset#"):
		var a Asset
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		o.Asset = &a
	case strings.HasPrefix(probe.SK, "device#"):
		var d Device
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		o.Device = &d
	default:
		return fmt.Errorf("object SK %q is neither asset nor device", probe.SK)
	}
	return nil
}

// MarshalJSON emits whichever variant is set.
func (o Object) MarshalJSON() ([]byte, error) {
	switch {
	case o.Asset != nil:
		return json.Marshal(o.Asset)
	case o.Device != nil:
		return json.Marshal(o.Device)
	default:
		return []byte("null"), nil
	}
}

// Objects groups the assets and devices carrying one tag.
type Objects struct {
	Assets  []Asset  `json:"assets"`
	Devices []Device `json:"devices"`
}

// Add appends obj to the matching list.
func (o *Objects) Add(obj Object) {
	if obj.Asset != nil {
		o.Assets = append(o.Assets, *obj.Asset)
	}
	if obj.Device != nil {
		o.Devices = append(o.Devices, *obj.Device)
	}
}

// Assets is the per-task asset attachment: a declared schema plus the
// objects resolved per tag.
type Assets struct {
	Schema  []SchemaItem        `json:"schema"`
	Objects map[string]*Objects `json:"objects"`
}

// New returns an empty, non-nil Assets value.
func New() *Assets {
	return &Assets{
		Schema:  []SchemaItem{},
		Objects: map[string]*Objects{},
	}
}

// AddObject records obj under tag, creating the bucket on first use.
func (a *Assets) AddObject(tag string, obj Object) {
	if a.Objects == nil {
		a.Objects = map[string]*Objects{}
	}
	bucket, ok := a.Objects[tag]
	if !ok {
		bucket = &Objects{}
		a.Objects[tag] = bucket
	}
	bucket.Add(obj)
}

// Clone deep-copies the attachment so loop iterations cannot leak writes.
func (a *Assets) Clone() *Assets {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return New()
	}
	var out Assets
	if err := json.Unmarshal(raw, &out); err != nil {
		return New()
	}
	return &out
}
