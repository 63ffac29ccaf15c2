package crawler

import "castdl/pkg/models"

// batchPolicy fixes how one batch of entries (a single video or one listing
// page) is resolved and how its failures propagate.
type batchPolicy struct {
	name string

	// failFast ends the run on the first entry or stream failure
	failFast bool

	// usePasscodes decides whether the passcode resolver is tried for an entry
	usePasscodes func(entry *models.VideoEntry, candidates int) bool

	// decodeFirst keeps streams decoded from the page and only asks the
	// resolver when decoding failed
	decodeFirst bool

	// resolveBeforeDate reads the publish date only once streams are known,
	// so a page without a player reports the missing manifest
	resolveBeforeDate bool
}

var (
	singlePolicy = batchPolicy{
		name:     "single",
		failFast: true,
		usePasscodes: func(_ *models.VideoEntry, candidates int) bool {
			return candidates == 1
		},
		resolveBeforeDate: true,
	}

	listingPolicy = batchPolicy{
		name:     "listing",
		failFast: false,
		usePasscodes: func(entry *models.VideoEntry, candidates int) bool {
			return entry.Locked && candidates > 0
		},
		decodeFirst: true,
	}
)
