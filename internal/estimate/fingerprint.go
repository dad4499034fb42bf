package estimate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/model"
)

// fingerprintInput is the canonical form hashed into a fingerprint. Map keys
// are sorted by encoding/json, so equal inputs always hash equally.
type fingerprintInput struct {
	Detections []model.Detection `json:"detections"`
	Trip       model.Trip        `json:"trip"`
	Policy     Policy            `json:"policy"`
	Model      string            `json:"model"`
}

// Fingerprint hashes the request inventory, resolved trip, pricing policy and
// model name. Identical requests share one fingerprint.
func Fingerprint(detections []model.Detection, trip model.Trip, p Policy, modelName string) (string, error) {
	canon := make([]model.Detection, len(detections))
	for i, d := range detections {
		canon[i] = model.Detection{
			Label:     d.Label,
			Qty:       d.Qty,
			CubicFeet: d.CubicFeet,
			Weight:    d.Weight,
			Size:      d.Size,
			Room:      d.Room,
			Notes:     d.Notes,
			Category:  d.Category,
		}
	}
	data, err := json.Marshal(fingerprintInput{
		Detections: canon,
		Trip:       trip,
		Policy:     p,
		Model:      modelName,
	})
	if err != nil {
		return "", eris.Wrap(err, "estimate: marshal fingerprint")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
