package training

import "encoding/json"

// headFile is the on-disk shape of a Head, written as the "head.json"
// sidecar inside a fine-tuned model artifact's directory. A flat JSON
// document is sufficient here: there is no tensor format in this stack
// suited to a single small float slice, and the registry already treats
// every other artifact file as an opaque blob.
type headFile struct {
	Scale       []float64 `json:"scale"`
	Temperature float64   `json:"temperature"`
	Bias        float64   `json:"bias"`
}

// MarshalJSON serializes the head for artifact storage.
func (h Head) MarshalJSON() ([]byte, error) {
	return json.Marshal(headFile{Scale: h.Scale, Temperature: h.Temperature, Bias: h.Bias})
}

// UnmarshalHead deserializes a head previously written by MarshalJSON.
func UnmarshalHead(data []byte) (Head, error) {
	var f headFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Head{}, err
	}
	return Head{Scale: f.Scale, Temperature: f.Temperature, Bias: f.Bias}, nil
}
