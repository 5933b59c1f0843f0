package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"wa-resolver/internal/domain"
)

// Protocol path segments of IIIF canvas ids and their Web Annotation counterpart.
const (
	segmentIIIF3 = "iiif3"
	segmentIIIF  = "iiif"
	segmentWA    = "wa"
)

// DeriveEndpoint maps a canvas id to its Web Annotation endpoint by replacing
// the first "iiif3", or failing that the first "iiif", with "wa". The rest of
// the id is left untouched. The result must be an absolute URL.
func DeriveEndpoint(canvasID string) (string, error) {
	var derived string
	if strings.Contains(canvasID, segmentIIIF3) {
		derived = strings.Replace(canvasID, segmentIIIF3, segmentWA, 1)
	} else {
		derived = strings.Replace(canvasID, segmentIIIF, segmentWA, 1)
	}

	u, err := url.Parse(derived)
	if err != nil {
		return "", domain.NewSubSystemError("annotation", "DeriveEndpoint", domain.ErrURLDerivation,
			fmt.Sprintf("canvas %q: %v", canvasID, err))
	}
	if !u.IsAbs() {
		return "", domain.NewSubSystemError("annotation", "DeriveEndpoint", domain.ErrURLDerivation,
			fmt.Sprintf("canvas %q: %q is not an absolute url", canvasID, derived))
	}
	return derived, nil
}
