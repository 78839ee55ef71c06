package predictor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Response keys produced by the model server.
const (
	KeyCPU       = "CPU_utilization"
	KeyMemory    = "Memory_usage"
	KeyDiskIO    = "Disk_IO_MBps"
	KeyNetworkBW = "Network_bw_MBps"
)

// DefaultBandwidthNormalization is the MBps rate treated as full bandwidth.
const DefaultBandwidthNormalization = 100.0

// RawOutput is the model answer before normalization.
type RawOutput struct {
	CPU       float64
	Memory    float64
	NetworkBW float64
	DiskIO    *float64
}

// colonAfterKey matches "key:value" with no space, which YAML flow mappings
// would otherwise read as a single scalar.
var colonAfterKey = regexp.MustCompile(`([A-Za-z0-9_"'])\s*:(\S)`)

// ParseRaw extracts the model keys from body. Strict JSON is tried first;
// a YAML flow mapping covers unquoted keys and loose spacing. A missing or
// non-numeric key is an error, never a silent zero.
func ParseRaw(body []byte) (RawOutput, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return RawOutput{}, err
	}

	var out RawOutput
	if out.CPU, err = numberField(fields, KeyCPU); err != nil {
		return RawOutput{}, err
	}
	if out.Memory, err = numberField(fields, KeyMemory); err != nil {
		return RawOutput{}, err
	}
	if out.NetworkBW, err = numberField(fields, KeyNetworkBW); err != nil {
		return RawOutput{}, err
	}
	if _, ok := fields[KeyDiskIO]; ok {
		if v, err := numberField(fields, KeyDiskIO); err == nil {
			out.DiskIO = &v
		}
	}
	return out, nil
}

// Normalize clamps CPU and memory to [0,1] and scales bandwidth by bwScale.
func Normalize(raw RawOutput, bwScale float64) models.Prediction {
	if bwScale <= 0 {
		bwScale = DefaultBandwidthNormalization
	}
	return models.Prediction{
		CPU:    models.Clamp01(raw.CPU),
		RAM:    models.Clamp01(raw.Memory),
		BW:     models.Clamp01(raw.NetworkBW / bwScale),
		Source: models.SourceModel,
	}
}

// Parse is ParseRaw followed by Normalize.
func Parse(body []byte, bwScale float64) (models.Prediction, error) {
	raw, err := ParseRaw(body)
	if err != nil {
		return models.Prediction{}, err
	}
	return Normalize(raw, bwScale), nil
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(trimmed, &fields); err == nil && fields != nil {
		return fields, nil
	}

	loose := colonAfterKey.ReplaceAll(trimmed, []byte("$1: $2"))
	fields = nil
	if err := yaml.Unmarshal(loose, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedResponse)
	}
	return fields, nil
}

func numberField(fields map[string]interface{}, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing key %s", ErrMalformedResponse, key)
	}

	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint64:
		v = float64(n)
	default:
		return 0, fmt.Errorf("%w: key %s is not a number (%T)", ErrMalformedResponse, key, raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: key %s is not finite", ErrMalformedResponse, key)
	}
	return v, nil
}
