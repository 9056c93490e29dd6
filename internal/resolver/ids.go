package resolver

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// NextObservationID mints the deterministic id for the next observation on
// an entity: OBS-<entity_id>-<YYYYMMDDHHMMSS>-<3-digit-seq>. The sequence is
// dense and monotonic within a second: appending twice in the same second
// yields -001 then -002.
func NextObservationID(e *model.Entity, at model.Timestamp) string {
	stamp := at.UTC().Format("20060102150405")
	prefix := fmt.Sprintf("OBS-%s-%s-", e.EntityID, stamp)

	maxSeq := 0
	for _, o := range e.Observations {
		rest, ok := strings.CutPrefix(o.ObservationID, prefix)
		if !ok {
			continue
		}
		var seq int
		if _, err := fmt.Sscanf(rest, "%d", &seq); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxSeq+1)
}

// randomID mints a <prefix>-<8 hex> id for records that only need to be
// unique, not meaningful.
func randomID(prefix string) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%x", prefix, u[:4])
}

func newConflictID() string     { return randomID("CONF") }
func newAttributeID() string    { return randomID("ATTR") }
func newRelationshipID() string { return randomID("REL") }
